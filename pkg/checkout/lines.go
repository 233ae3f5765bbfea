package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const ReasonCartInvalid = "CART_INVALID"

// LineIssue names why a cart line cannot be bought.
type LineIssue string

const (
	IssueInvalidQuantity   LineIssue = "INVALID_QUANTITY"
	IssueVariantNotFound   LineIssue = "VARIANT_NOT_FOUND"
	IssueProductInactive   LineIssue = "PRODUCT_INACTIVE"
	IssueVariantInactive   LineIssue = "VARIANT_INACTIVE"
	IssueInsufficientStock LineIssue = "INSUFFICIENT_STOCK"
	IssuePriceChanged      LineIssue = "PRICE_CHANGED"
)

// LineError describes one failing cart line.
type LineError struct {
	Index         int              `json:"index"`
	VariantID     uuid.UUID        `json:"variantId"`
	Issue         LineIssue        `json:"issue"`
	Requested     int              `json:"requested,omitempty"`
	Available     *int             `json:"available,omitempty"`
	ExpectedPrice *decimal.Decimal `json:"expectedPrice,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice,omitempty"`
}

// LineErrors reports every failing line at once. It returns nil when there are none.
func LineErrors(lines []LineError) error {
	if len(lines) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d cart line(s) cannot be checked out", len(lines))).
		WithReason(ReasonCartInvalid).
		WithDetails(map[string]any{"lines": lines})
}

// LineErrorsFrom extracts the per-line details from an error built by LineErrors.
func LineErrorsFrom(err error) []LineError {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Reason() != ReasonCartInvalid {
		return nil
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return nil
	}
	lines, _ := details["lines"].([]LineError)
	return lines
}
