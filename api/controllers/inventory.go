package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/query"
)

type inventoryService interface {
	Adjust(ctx context.Context, tx *gorm.DB, input inventory.AdjustInput) (*inventory.Result, error)
	ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) (*inventory.MovementPage, error)
	LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error)
}

type adjustInventoryRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=purchase adjustment return"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type inventoryItemResponse struct {
	VariantID         uuid.UUID `json:"variantId"`
	Quantity          int       `json:"quantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type movementResponse struct {
	ID               uuid.UUID                   `json:"id"`
	Type             enums.InventoryMovementType `json:"type"`
	Quantity         int                         `json:"quantity"`
	PreviousQuantity int                         `json:"previousQuantity"`
	NewQuantity      int                         `json:"newQuantity"`
	ReferenceType    *string                     `json:"referenceType,omitempty"`
	ReferenceID      *uuid.UUID                  `json:"referenceId,omitempty"`
	Notes            *string                     `json:"notes,omitempty"`
	ActorID          *uuid.UUID                  `json:"actorId,omitempty"`
	CreatedAt        time.Time                   `json:"createdAt"`
}

// AdjustInventory records a manual stock correction for a variant.
func AdjustInventory(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Adjust(r.Context(), nil, inventory.AdjustInput{
			VariantID: variantID,
			Delta:     payload.Delta,
			Type:      enums.InventoryMovementType(payload.Type),
			Reason:    payload.Reason,
			ActorID:   middleware.SubjectFromContext(r.Context()).ActorID(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"item":     newInventoryItemResponse(result.Item),
			"movement": newMovementResponse(result.Movement),
		})
	}
}

// InventoryMovements pages through a variant's movement log, newest first.
func InventoryMovements(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.ParseUUIDParam(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMovements(r.Context(), variantID, query.FromValues(r.URL.Query(), inventory.MovementFields), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]movementResponse, 0, len(page.Movements))
		for _, mv := range page.Movements {
			out = append(out, newMovementResponse(mv))
		}
		responses.WriteSuccess(w, map[string]any{
			"movements":  out,
			"nextCursor": page.NextCursor,
		})
	}
}

func LowStockReport(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.LowStock(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]inventoryItemResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newInventoryItemResponse(row))
		}
		responses.WriteSuccess(w, map[string]any{"items": out})
	}
}

func newInventoryItemResponse(item models.InventoryItem) inventoryItemResponse {
	return inventoryItemResponse{
		VariantID:         item.VariantID,
		Quantity:          item.Quantity,
		ReservedQuantity:  item.ReservedQuantity,
		Available:         item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		UpdatedAt:         item.UpdatedAt,
	}
}

func newMovementResponse(mv models.InventoryMovement) movementResponse {
	return movementResponse{
		ID:               mv.ID,
		Type:             mv.Type,
		Quantity:         mv.Quantity,
		PreviousQuantity: mv.PreviousQuantity,
		NewQuantity:      mv.NewQuantity,
		ReferenceType:    mv.ReferenceType,
		ReferenceID:      mv.ReferenceID,
		Notes:            mv.Notes,
		ActorID:          mv.ActorID,
		CreatedAt:        mv.CreatedAt,
	}
}
