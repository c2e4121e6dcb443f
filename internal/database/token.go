package database

import (
	"context"
	"fmt"

	"git.sr.ht/~jakintosh/gnap/internal/service"
)

func (s *SQLiteStore) AccessTokenStore() service.AccessTokenStore {
	return s
}

// InsertAccessToken stores a minted token. The UNIQUE constraint on grant_id
// makes concurrent continuation calls resolve to exactly one stored token;
// the loser sees inserted=false.
func (s *SQLiteStore) InsertAccessToken(
	ctx context.Context,
	token *service.AccessToken,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO access_tokens
			(value, management_id, grant_id, expires_in, created_at)
		VALUES (?, ?, ?, ?, ?);`,
		token.Value,
		token.ManagementID,
		token.GrantID,
		token.ExpiresIn,
		token.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("couldn't insert into access_tokens: %v", err)
	}
	return !resultsEmpty(result), nil
}

func (s *SQLiteStore) DeleteTokenByManagementID(
	ctx context.Context,
	managementID string,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM access_tokens
		WHERE management_id=?;`,
		managementID,
	)
	if err != nil {
		return false, fmt.Errorf("couldn't delete from access_tokens: %v", err)
	}
	return !resultsEmpty(result), nil
}

func (s *SQLiteStore) DeleteTokenByGrantID(
	ctx context.Context,
	grantID string,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM access_tokens
		WHERE grant_id=?;`,
		grantID,
	)
	if err != nil {
		return false, fmt.Errorf("couldn't delete from access_tokens: %v", err)
	}
	return !resultsEmpty(result), nil
}
