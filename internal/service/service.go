// Package service implements the grant negotiation engine for the auth
// server: the grant lifecycle state machine, interaction correlation,
// continuation resolution, and access token issuance.
package service

import (
	"errors"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidClient  = errors.New("invalid client")
	ErrUnknownGrant   = errors.New("unknown grant")
	ErrDenied         = errors.New("grant denied")
	ErrAlreadyGranted = errors.New("grant already granted")
	ErrRequestDenied  = errors.New("request denied")
	ErrTokenIssued    = errors.New("token already issued")
	ErrTokenNotFound  = errors.New("token not found")
	ErrInternal       = errors.New("internal error")
)

// Service coordinates grant lifecycle operations. It depends on storage
// interfaces (GrantStore, AccessTokenStore) and delegates to them for
// persistence; every state transition goes through the store's atomic
// conditional updates.
type Service struct {
	grants           GrantStore
	tokens           AccessTokenStore
	authServerDomain string
	tokenLifetime    time.Duration
}

func New(
	grants GrantStore,
	tokens AccessTokenStore,
	authServerDomain string,
	tokenLifetime time.Duration,
) *Service {
	return &Service{
		grants:           grants,
		tokens:           tokens,
		authServerDomain: authServerDomain,
		tokenLifetime:    tokenLifetime,
	}
}

// AuthServerDomain is the externally visible base URL of this server, used
// to build interaction and continuation URIs.
func (s *Service) AuthServerDomain() string {
	return s.authServerDomain
}
