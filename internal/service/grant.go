package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InitiateGrant validates an initiation request, generates the grant's
// capability tokens, and persists the new grant in the pending state.
// clientKeyID is the key id the initiation request's signature verified
// against; it binds the grant to the requesting client.
func (s *Service) InitiateGrant(
	ctx context.Context,
	req *GrantRequest,
	clientKeyID string,
) (
	*Grant,
	error,
) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	interactNonce, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	interactRef, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	continueToken, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	grant := &Grant{
		ID:            uuid.NewString(),
		State:         GrantStatePending,
		InteractID:    uuid.NewString(),
		InteractNonce: interactNonce,
		InteractRef:   interactRef,
		ContinueID:    uuid.NewString(),
		ContinueToken: continueToken,
		ClientKeyID:   clientKeyID,
		ClientNonce:   req.Interact.Finish.Nonce,
		FinishURI:     req.Interact.Finish.URI,
		Access:        req.AccessToken.Access,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.grants.InsertGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("%w: failed to insert grant: %v", ErrInternal, err)
	}

	return grant, nil
}

// GetByInteraction resolves a grant by its interaction capability pair. A
// wrong id and a wrong nonce are indistinguishable to the caller.
func (s *Service) GetByInteraction(
	ctx context.Context,
	interactID string,
	nonce string,
) (
	*Grant,
	error,
) {
	grant, err := s.grants.GetByInteraction(ctx, interactID, nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownGrant
		}
		return nil, fmt.Errorf("%w: failed to look up grant: %v", ErrInternal, err)
	}
	return grant, nil
}

// GetByContinuation resolves a grant by its continuation capability triple.
// All three pieces must match the same grant; the secret token and the
// interact reference are compared in constant time, and every failure mode
// collapses to ErrUnknownGrant.
func (s *Service) GetByContinuation(
	ctx context.Context,
	continueID string,
	continueToken string,
	interactRef string,
) (
	*Grant,
	error,
) {
	grant, err := s.getByContinueToken(ctx, continueID, continueToken)
	if err != nil {
		return nil, err
	}
	if !constantTimeEqual(grant.InteractRef, interactRef) {
		return nil, ErrUnknownGrant
	}
	return grant, nil
}

func (s *Service) getByContinueToken(
	ctx context.Context,
	continueID string,
	continueToken string,
) (
	*Grant,
	error,
) {
	grant, err := s.grants.GetByContinueID(ctx, continueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownGrant
		}
		return nil, fmt.Errorf("%w: failed to look up grant: %v", ErrInternal, err)
	}
	if !constantTimeEqual(grant.ContinueToken, continueToken) {
		return nil, ErrUnknownGrant
	}
	return grant, nil
}

// Approve transitions a pending grant to granted. Exactly one of any number
// of concurrent Approve/Deny calls wins; the rest observe the state the
// winner left behind.
func (s *Service) Approve(
	ctx context.Context,
	grantID string,
) error {
	return s.transition(ctx, grantID, GrantStateGranted)
}

// Deny transitions a pending grant to rejected. A grant that already
// reached granted is never unwound.
func (s *Service) Deny(
	ctx context.Context,
	grantID string,
) error {
	return s.transition(ctx, grantID, GrantStateRejected)
}

func (s *Service) transition(
	ctx context.Context,
	grantID string,
	next GrantState,
) error {
	transitioned, current, err := s.grants.TransitionFromPending(ctx, grantID, next)
	if err != nil {
		return fmt.Errorf("%w: failed to transition grant: %v", ErrInternal, err)
	}
	if transitioned {
		return nil
	}

	switch current {
	case GrantStateGranted:
		return ErrAlreadyGranted
	case GrantStateRejected, GrantStateRevoked:
		return ErrDenied
	default:
		return fmt.Errorf("%w: grant in unexpected state %q", ErrInternal, current)
	}
}

// Revoke resolves a grant by its continuation credentials, moves it to
// revoked, and deletes any issued access token. Revoking an already revoked
// grant is a no-op.
func (s *Service) Revoke(
	ctx context.Context,
	continueID string,
	continueToken string,
) error {
	grant, err := s.getByContinueToken(ctx, continueID, continueToken)
	if err != nil {
		return err
	}

	if _, err := s.grants.RevokeGrant(ctx, grant.ID); err != nil {
		return fmt.Errorf("%w: failed to revoke grant: %v", ErrInternal, err)
	}
	if _, err := s.tokens.DeleteTokenByGrantID(ctx, grant.ID); err != nil {
		return fmt.Errorf("%w: failed to delete access token: %v", ErrInternal, err)
	}
	return nil
}

// FinishOutcome is the branch the finish step takes for a grant.
type FinishOutcome int

const (
	FinishGranted FinishOutcome = iota
	FinishRejected
	FinishInvalid
)

// FinishResult computes the finish branch from a grant's current state.
func FinishResult(grant *Grant) FinishOutcome {
	switch grant.State {
	case GrantStateGranted:
		return FinishGranted
	case GrantStateRejected:
		return FinishRejected
	default:
		return FinishInvalid
	}
}

// newToken generates an opaque capability token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("couldn't generate token: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// constantTimeEqual compares two secrets without leaking the position of a
// mismatch, or their lengths, through timing.
func constantTimeEqual(a string, b string) bool {
	digestA := sha256.Sum256([]byte(a))
	digestB := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(digestA[:], digestB[:]) == 1
}
