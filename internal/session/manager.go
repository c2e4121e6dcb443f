// Package session binds a user agent to a specific interaction. The nonce
// recorded at interaction start is compared against the nonce presented at
// finish time, which is what ties the browser session to the grant.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "gnap_interact"
	sessionTTL = 10 * time.Minute
)

// Store handles persistence of short-lived interaction session records.
// Lookups that find nothing (or only an expired record) return an error
// wrapping sql.ErrNoRows.
type Store interface {
	InsertSession(ctx context.Context, id string, interactNonce string, expiresAt time.Time) error
	GetSessionNonce(ctx context.Context, id string, now time.Time) (string, error)
	DeleteSession(ctx context.Context, id string) error
}

// Manager issues and resolves interaction session cookies.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Bind records the interaction nonce against a fresh opaque session id and
// sets the session cookie on the response.
func (m *Manager) Bind(
	ctx context.Context,
	w http.ResponseWriter,
	interactNonce string,
) error {
	id := uuid.NewString()
	expiresAt := time.Now().UTC().Add(sessionTTL)

	if err := m.store.InsertSession(ctx, id, interactNonce, expiresAt); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		HttpOnly: true,
		Path:     "/",
		Expires:  expiresAt,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Nonce resolves the nonce recorded for the request's session cookie.
// A missing cookie, unknown session, or expired session all return the
// store's not-found error.
func (m *Manager) Nonce(
	ctx context.Context,
	r *http.Request,
) (
	string,
	error,
) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", err
	}
	return m.store.GetSessionNonce(ctx, cookie.Value, time.Now().UTC())
}

// Clear removes the session record once the interaction has finished.
func (m *Manager) Clear(
	ctx context.Context,
	r *http.Request,
) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return
	}
	_ = m.store.DeleteSession(ctx, cookie.Value)
}
