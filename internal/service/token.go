package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IssueAccessToken mints the access token for a granted grant. The store's
// uniqueness guard makes this safe against double submission: when two
// continuation calls race, exactly one mints a token and the other fails
// with ErrTokenIssued.
func (s *Service) IssueAccessToken(
	ctx context.Context,
	grant *Grant,
) (
	*AccessToken,
	error,
) {
	value, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	token := &AccessToken{
		Value:        value,
		ManagementID: uuid.NewString(),
		GrantID:      grant.ID,
		ExpiresIn:    int64(s.tokenLifetime.Seconds()),
		CreatedAt:    time.Now().UTC(),
	}

	inserted, err := s.tokens.InsertAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert access token: %v", ErrInternal, err)
	}
	if !inserted {
		return nil, ErrTokenIssued
	}

	return token, nil
}

// RevokeAccessToken deletes the token named by its management id.
func (s *Service) RevokeAccessToken(
	ctx context.Context,
	managementID string,
) error {
	deleted, err := s.tokens.DeleteTokenByManagementID(ctx, managementID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete access token: %v", ErrInternal, err)
	}
	if !deleted {
		return ErrTokenNotFound
	}
	return nil
}
