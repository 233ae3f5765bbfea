package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

var (
	errBaseURLRequired = errors.New("payment gateway base url is required")
	errAPIKeyRequired  = errors.New("payment gateway api key is required")
)

// Gateway opens hosted payment sessions with the external provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// SessionRequest is what the provider needs to render a payment page.
type SessionRequest struct {
	MerchantID    string          `json:"merchantId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OrderID       uuid.UUID       `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	ReturnURL     string          `json:"returnUrl"`
	CancelURL     string          `json:"cancelUrl"`
	NotifyURL     string          `json:"notifyUrl"`
}

// Session is the provider's reference to an open payment page.
type Session struct {
	SessionID  string     `json:"sessionId"`
	PaymentURL string     `json:"paymentUrl"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// SessionStatus is the provider's view of a session, used for manual checks.
type SessionStatus struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
}

// HTTPGateway talks to the provider's REST API with a bearer key.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// GatewayOption configures optional gateway behavior.
type GatewayOption func(*HTTPGateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		if timeout > 0 {
			g.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPGateway builds the gateway client.
func NewHTTPGateway(baseURL, apiKey string, opts ...GatewayOption) (*HTTPGateway, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	g := &HTTPGateway{
		baseURL:    trimmedURL,
		apiKey:     trimmedKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// CreateSession calls POST {base}/sessions.
func (g *HTTPGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if g == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal session request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build session request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OrderID.String()+":"+req.Amount.StringFixed(2))

	var session Session
	if err := g.do(httpReq, "create session", &session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.SessionID) == "" || strings.TrimSpace(session.PaymentURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned an incomplete session")
	}
	return &session, nil
}

// GetSession calls GET {base}/sessions/{id}.
func (g *HTTPGateway) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if g == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/sessions/"+url.PathEscape(trimmed), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build session lookup request")
	}
	var status SessionStatus
	if err := g.do(httpReq, "get session", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (g *HTTPGateway) do(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), op+" request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}
