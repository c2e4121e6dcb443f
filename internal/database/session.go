package database

import (
	"context"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/gnap/internal/session"
)

func (s *SQLiteStore) SessionStore() session.Store {
	return s
}

func (s *SQLiteStore) InsertSession(
	ctx context.Context,
	id string,
	interactNonce string,
	expiresAt time.Time,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_sessions (id, interact_nonce, expires_at)
		VALUES (?, ?, ?);`,
		id,
		interactNonce,
		expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into interaction_sessions: %v", err)
	}
	return nil
}

// GetSessionNonce returns the nonce bound to an unexpired session. An
// expired session is indistinguishable from a missing one.
func (s *SQLiteStore) GetSessionNonce(
	ctx context.Context,
	id string,
	now time.Time,
) (
	string,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT interact_nonce
		FROM interaction_sessions
		WHERE id=? AND expires_at>?;`,
		id,
		now.Unix(),
	)

	var nonce string
	if err := row.Scan(&nonce); err != nil {
		return "", err
	}
	return nonce, nil
}

func (s *SQLiteStore) DeleteSession(
	ctx context.Context,
	id string,
) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM interaction_sessions
		WHERE id=?;`,
		id,
	); err != nil {
		return fmt.Errorf("couldn't delete from interaction_sessions: %v", err)
	}
	return nil
}
