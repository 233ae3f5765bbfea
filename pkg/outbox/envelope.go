package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CurrentEnvelopeVersion is written on every new event.
const CurrentEnvelopeVersion = 1

// ActorRef names the user behind an event. Events raised by the system
// (webhooks, sweeps) carry no actor.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Roles  []string  `json:"roles,omitempty"`
}

// NewActorRef returns nil for the system caller.
func NewActorRef(userID uuid.UUID, roles []enums.Role) *ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return &ActorRef{UserID: userID, Roles: names}
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim. EventID doubles as the consumer-side dedupe key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    uuid.UUID       `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var (
	ErrEnvelopeMissingID   = errors.New("envelope has no event id")
	ErrEnvelopeMissingData = errors.New("envelope has no data")
)

// DecodeEnvelope parses raw and rejects envelopes no consumer could act on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == uuid.Nil {
		return PayloadEnvelope{}, ErrEnvelopeMissingID
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEnvelopeMissingData
	}
	if env.Version == 0 {
		env.Version = CurrentEnvelopeVersion
	}
	return env, nil
}
