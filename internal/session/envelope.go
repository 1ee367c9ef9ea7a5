package session

import (
	"encoding/json"
	"time"

	"github.com/pagemesh/pagemesh/internal/platform/errors"
)

// envelopeSkew tolerates clock drift between client and server when
// judging envelope freshness.
const envelopeSkew = 5 * time.Minute

// ActionEnvelope authenticates one mutation under an existing lease.
// The lease token proves identity once; envelopes ride on it instead of
// carrying a fresh signature per mutation.
type ActionEnvelope struct {
	SessionID string          `json:"sessionId"`
	Action    Permission      `json:"action"`
	ElementID string          `json:"elementId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

// VerifyAction validates an envelope against a lease token and the role
// table. On success it returns the lease the action executes under.
func (a *Authenticator) VerifyAction(token string, envelope ActionEnvelope, roles *RoleTable) (Lease, error) {
	if envelope.SessionID == "" || envelope.Action == "" || envelope.ElementID == "" || envelope.Nonce == "" {
		return Lease{}, errors.New(errors.CodeSessionMalformedEnvelope, "envelope is missing required fields")
	}

	now := a.now()
	if envelope.Timestamp.IsZero() || envelope.Timestamp.Before(now.Add(-envelopeSkew)) || envelope.Timestamp.After(now.Add(envelopeSkew)) {
		return Lease{}, errors.New(errors.CodeSessionMalformedEnvelope, "envelope timestamp is outside the accepted window")
	}

	lease, err := a.VerifyLease(token)
	if err != nil {
		return Lease{}, err
	}
	if lease.SessionID != envelope.SessionID {
		return Lease{}, errors.New(errors.CodeSessionMalformedEnvelope, "envelope session does not match lease")
	}

	if roles != nil && !roles.Allows(lease.PublicKey, envelope.Action) {
		return Lease{}, errors.WithMetadata(errors.CodeSessionPermissionDenied, "role does not grant action", map[string]string{
			"action": string(envelope.Action),
		})
	}

	return lease, nil
}
