package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestHTTPGatewayCreateSession(t *testing.T) {
	orderID := uuid.New()
	var captured *http.Request
	var payload map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		return jsonResponse(http.StatusCreated, `{"sessionId":"sess_123","paymentUrl":"https://pay.test/sess_123","expiresAt":"2026-10-15T12:00:00Z"}`), nil
	})

	gw, err := NewHTTPGateway("https://pay.test/v1/", "key_abc", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	session, err := gw.CreateSession(context.Background(), SessionRequest{
		MerchantID: "m_1",
		Amount:     decimal.RequireFromString("108.00"),
		Currency:   "USD",
		OrderID:    orderID,
		ReturnURL:  "https://shop.test/checkout/complete",
	})
	require.NoError(t, err)

	assert.Equal(t, "sess_123", session.SessionID)
	assert.Equal(t, "https://pay.test/sess_123", session.PaymentURL)
	require.NotNil(t, session.ExpiresAt)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "https://pay.test/v1/sessions", captured.URL.String())
	assert.Equal(t, "Bearer key_abc", captured.Header.Get("Authorization"))
	assert.Equal(t, orderID.String()+":108.00", captured.Header.Get("Idempotency-Key"))
	assert.Equal(t, "m_1", payload["merchantId"])
	assert.Equal(t, "108", payload["amount"])
}

func TestHTTPGatewayMapsFailuresToDependencyErrors(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `upstream unavailable`), nil
	})
	gw, err := NewHTTPGateway("https://pay.test", "key", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = gw.CreateSession(context.Background(), SessionRequest{Amount: decimal.NewFromInt(5), OrderID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, err.Error(), "create session request failed")
}

func TestHTTPGatewayRejectsIncompleteSession(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"sessionId":""}`), nil
	})
	gw, err := NewHTTPGateway("https://pay.test", "key", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = gw.CreateSession(context.Background(), SessionRequest{Amount: decimal.NewFromInt(5), OrderID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestHTTPGatewayGetSession(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "https://pay.test/sessions/sess%2F1", req.URL.String())
		return jsonResponse(http.StatusOK, `{"sessionId":"sess/1","status":"completed","transactionId":"tx_9"}`), nil
	})
	gw, err := NewHTTPGateway("https://pay.test", "key", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	status, err := gw.GetSession(context.Background(), "sess/1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "tx_9", status.TransactionID)
}

func TestNewHTTPGatewayValidatesConfig(t *testing.T) {
	_, err := NewHTTPGateway("", "key")
	assert.ErrorIs(t, err, errBaseURLRequired)
	_, err = NewHTTPGateway("https://pay.test", " ")
	assert.ErrorIs(t, err, errAPIKeyRequired)
}
