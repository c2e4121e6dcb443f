package service

import "context"

// GrantStore handles persistence of grants and their access rights.
//
// Lookups that find nothing return an error wrapping sql.ErrNoRows; the
// service maps that to ErrUnknownGrant so callers can't tell a missing grant
// from a mismatched correlation token.
type GrantStore interface {
	InsertGrant(ctx context.Context, grant *Grant) error

	// GetByInteraction resolves a grant by the compound interaction key.
	GetByInteraction(ctx context.Context, interactID string, nonce string) (*Grant, error)

	// GetByContinueID resolves a grant by continuation id only. The secret
	// continuation token is deliberately not part of the query so its
	// comparison never touches an index; the service compares it in
	// constant time.
	GetByContinueID(ctx context.Context, continueID string) (*Grant, error)

	// TransitionFromPending atomically moves a pending grant to next.
	// When the grant is no longer pending it reports transitioned=false
	// and the state the grant was found in.
	TransitionFromPending(ctx context.Context, grantID string, next GrantState) (transitioned bool, current GrantState, err error)

	// RevokeGrant moves a grant to revoked from any state. Reports whether
	// this call performed the transition.
	RevokeGrant(ctx context.Context, grantID string) (bool, error)
}

// AccessTokenStore handles persistence of issued access tokens.
type AccessTokenStore interface {
	// InsertAccessToken stores a freshly minted token. It reports
	// inserted=false when the grant already has a token, which is how the
	// at-most-one-token-per-grant invariant is enforced under concurrent
	// continuation calls.
	InsertAccessToken(ctx context.Context, token *AccessToken) (inserted bool, err error)

	DeleteTokenByManagementID(ctx context.Context, managementID string) (deleted bool, err error)
	DeleteTokenByGrantID(ctx context.Context, grantID string) (deleted bool, err error)
}
