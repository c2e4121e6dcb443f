package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/gnap/internal/service"
)

func (s *SQLiteStore) GrantStore() service.GrantStore {
	return s
}

func (s *SQLiteStore) InsertGrant(
	ctx context.Context,
	grant *service.Grant,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("couldn't begin grant insert: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO grants (
			id, state,
			interact_id, interact_nonce, interact_ref,
			continue_id, continue_token,
			client_key_id, client_nonce, finish_uri,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		grant.ID,
		string(grant.State),
		grant.InteractID,
		grant.InteractNonce,
		grant.InteractRef,
		grant.ContinueID,
		grant.ContinueToken,
		grant.ClientKeyID,
		grant.ClientNonce,
		grant.FinishURI,
		grant.CreatedAt.Unix(),
		grant.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into grants: %v", err)
	}

	for position, access := range grant.Access {
		if err := insertAccess(ctx, tx, grant.ID, position, access); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("couldn't commit grant insert: %v", err)
	}
	return nil
}

func insertAccess(
	ctx context.Context,
	tx *sql.Tx,
	grantID string,
	position int,
	access service.Access,
) error {
	actions, err := json.Marshal(access.Actions)
	if err != nil {
		return fmt.Errorf("couldn't encode access actions: %v", err)
	}
	locations, err := json.Marshal(access.Locations)
	if err != nil {
		return fmt.Errorf("couldn't encode access locations: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO access (grant_id, position, type, actions, locations, identifier)
		VALUES (?, ?, ?, ?, ?, ?);`,
		grantID,
		position,
		access.Type,
		string(actions),
		string(locations),
		access.Identifier,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert into access: %v", err)
	}
	return nil
}

func (s *SQLiteStore) GetByInteraction(
	ctx context.Context,
	interactID string,
	nonce string,
) (
	*service.Grant,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM grants
		WHERE interact_id=? AND interact_nonce=?;`,
		interactID,
		nonce,
	)
	return s.scanGrant(ctx, row)
}

func (s *SQLiteStore) GetByContinueID(
	ctx context.Context,
	continueID string,
) (
	*service.Grant,
	error,
) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM grants
		WHERE continue_id=?;`,
		continueID,
	)
	return s.scanGrant(ctx, row)
}

func (s *SQLiteStore) TransitionFromPending(
	ctx context.Context,
	grantID string,
	next service.GrantState,
) (
	bool,
	service.GrantState,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE grants
		SET state=?, updated_at=?
		WHERE id=? AND state=?;`,
		string(next),
		time.Now().UTC().Unix(),
		grantID,
		string(service.GrantStatePending),
	)
	if err != nil {
		return false, "", fmt.Errorf("couldn't update grant state: %v", err)
	}
	if !resultsEmpty(result) {
		return true, next, nil
	}

	// Lost the race (or the grant was already resolved): report the state
	// the grant actually is in.
	row := s.db.QueryRowContext(ctx, `
		SELECT state
		FROM grants
		WHERE id=?;`,
		grantID,
	)
	var current string
	if err := row.Scan(&current); err != nil {
		return false, "", fmt.Errorf("couldn't read grant state: %w", err)
	}
	return false, service.GrantState(current), nil
}

func (s *SQLiteStore) RevokeGrant(
	ctx context.Context,
	grantID string,
) (
	bool,
	error,
) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE grants
		SET state=?, updated_at=?
		WHERE id=? AND state!=?;`,
		string(service.GrantStateRevoked),
		time.Now().UTC().Unix(),
		grantID,
		string(service.GrantStateRevoked),
	)
	if err != nil {
		return false, fmt.Errorf("couldn't revoke grant: %v", err)
	}
	return !resultsEmpty(result), nil
}

const grantColumns = `
	id, state,
	interact_id, interact_nonce, interact_ref,
	continue_id, continue_token,
	client_key_id, client_nonce, finish_uri,
	created_at, updated_at`

func (s *SQLiteStore) scanGrant(
	ctx context.Context,
	row *sql.Row,
) (
	*service.Grant,
	error,
) {
	var (
		grant     service.Grant
		state     string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&grant.ID,
		&state,
		&grant.InteractID,
		&grant.InteractNonce,
		&grant.InteractRef,
		&grant.ContinueID,
		&grant.ContinueToken,
		&grant.ClientKeyID,
		&grant.ClientNonce,
		&grant.FinishURI,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	grant.State = service.GrantState(state)
	grant.CreatedAt = time.Unix(createdAt, 0).UTC()
	grant.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	access, err := s.getAccess(ctx, grant.ID)
	if err != nil {
		return nil, err
	}
	grant.Access = access

	return &grant, nil
}

func (s *SQLiteStore) getAccess(
	ctx context.Context,
	grantID string,
) (
	[]service.Access,
	error,
) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, actions, locations, identifier
		FROM access
		WHERE grant_id=?
		ORDER BY position;`,
		grantID,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't query access: %v", err)
	}
	defer rows.Close()

	var accessSet []service.Access
	for rows.Next() {
		var (
			access    service.Access
			actions   string
			locations string
		)
		if err := rows.Scan(&access.Type, &actions, &locations, &access.Identifier); err != nil {
			return nil, fmt.Errorf("couldn't scan access: %v", err)
		}
		if err := json.Unmarshal([]byte(actions), &access.Actions); err != nil {
			return nil, fmt.Errorf("couldn't decode access actions: %v", err)
		}
		if err := json.Unmarshal([]byte(locations), &access.Locations); err != nil {
			return nil, fmt.Errorf("couldn't decode access locations: %v", err)
		}
		accessSet = append(accessSet, access)
	}
	return accessSet, rows.Err()
}
