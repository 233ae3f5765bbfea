package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	gatewaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	signatureHeader = "X-Gateway-Signature"
	signaturePrefix = "sha256="
	maxPayloadBytes = 1 << 20
)

const outcomeRejected = "rejected"

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, event gatewaywebhook.Event) (gatewaywebhook.Outcome, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, event gatewaywebhook.EventType, sessionID string) (bool, error)
	Delete(ctx context.Context, event gatewaywebhook.EventType, sessionID string) error
}

type deliveryCounter interface {
	Observe(event, outcome string)
}

// GatewayWebhookOptions wires the gateway notification endpoint.
type GatewayWebhookOptions struct {
	Service GatewayWebhookService
	// Guard is optional; without it every delivery reaches the reconciler.
	Guard   deliveryGuard
	Policy  config.SignaturePolicy
	Secret  string
	Metrics deliveryCounter
	Logger  *logger.Logger
}

// GatewayWebhook authenticates and reconciles payment notifications.
func GatewayWebhook(opts GatewayWebhookOptions) http.HandlerFunc {
	logg := opts.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if opts.Service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				opts.observe("", outcomeRejected)
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := verifySignature(opts.Policy, opts.Secret, r.Header.Get(signatureHeader), payload); err != nil {
			opts.observe("", outcomeRejected)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var event gatewaywebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			opts.observe("", outcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"webhook_event": string(event.Event),
				"session_id":    event.SessionID,
			})
		}

		guarded := opts.Guard != nil && event.Event.Known() && event.SessionID != ""
		if guarded {
			seen, err := opts.Guard.CheckAndMark(ctx, event.Event, event.SessionID)
			switch {
			case err != nil:
				// the payment row still rejects replays, so carry on without the guard
				guarded = false
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.guard_unavailable")
				}
			case seen:
				opts.observe(string(event.Event), string(gatewaywebhook.OutcomeDuplicate))
				responses.WriteSuccess(w, webhookResponse{Received: true, Outcome: gatewaywebhook.OutcomeDuplicate})
				return
			}
		}

		outcome, err := opts.Service.HandleEvent(ctx, event)
		if err != nil {
			if guarded {
				if delErr := opts.Guard.Delete(ctx, event.Event, event.SessionID); delErr != nil && logg != nil {
					logg.Error(ctx, "webhook.guard_release_failed", delErr)
				}
			}
			opts.observe(string(event.Event), "error")
			responses.WriteError(ctx, logg, w, redeliverable(err))
			return
		}

		opts.observe(string(event.Event), string(outcome))
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "webhook.handled")
		}
		responses.WriteSuccess(w, webhookResponse{Received: true, Outcome: outcome})
	}
}

// redeliverable keeps unknown sessions and bad payloads as 4xx. Every other
// failure happened while applying the event and must surface as 5xx so the
// gateway sends it again.
func redeliverable(err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeValidation, pkgerrors.CodeInternal, pkgerrors.CodeDependency:
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook could not be applied")
}

type webhookResponse struct {
	Received bool                   `json:"received"`
	Outcome  gatewaywebhook.Outcome `json:"outcome"`
}

func (o GatewayWebhookOptions) observe(event, outcome string) {
	if o.Metrics != nil {
		o.Metrics.Observe(event, outcome)
	}
}

// verifySignature checks the hex HMAC-SHA256 of the raw body. A missing header
// is only accepted under SignatureOptionalIfAbsent; a present header is always
// verified.
func verifySignature(policy config.SignaturePolicy, secret, header string, payload []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		if policy == config.SignatureOptionalIfAbsent {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature cannot be verified")
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(header), signaturePrefix))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature malformed")
	}
	if !hmac.Equal(provided, Sign(secret, payload)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
