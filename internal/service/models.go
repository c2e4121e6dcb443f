package service

import "time"

// GrantState tracks where a grant sits in its lifecycle. Transitions are
// monotonic: pending moves to granted or rejected exactly once, any state
// can move to revoked, and nothing ever moves back to pending.
type GrantState string

const (
	GrantStatePending  GrantState = "pending"
	GrantStateGranted  GrantState = "granted"
	GrantStateRejected GrantState = "rejected"
	GrantStateRevoked  GrantState = "revoked"
)

// Grant is the central record of a negotiation: the rights a client asked
// for, the capability tokens that correlate the three parties, and the
// resource owner's decision.
//
// The interaction pair (InteractID, InteractNonce) is the capability held by
// the IdP-driven browser session; the continuation pair (ContinueID,
// ContinueToken) is held only by the initiating client; InteractRef bridges
// the two and is disclosed to the client only after approval. Keeping these
// capabilities separate prevents either side from completing the other's
// step.
type Grant struct {
	ID    string
	State GrantState

	InteractID    string
	InteractNonce string
	InteractRef   string

	ContinueID    string
	ContinueToken string

	ClientKeyID string
	ClientNonce string
	FinishURI   string

	Access []Access

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Access is one requested access right. The set attached to a grant is
// immutable once the grant is created.
type Access struct {
	Type       string   `json:"type"`
	Actions    []string `json:"actions"`
	Locations  []string `json:"locations,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
}

// AccessToken is the credential minted when a granted grant is continued.
// At most one exists per grant.
type AccessToken struct {
	Value        string
	ManagementID string
	GrantID      string
	ExpiresIn    int64
	CreatedAt    time.Time
}
