// Package testutil provides test environment setup and utilities for
// internal package tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/gnap/internal/api"
	"git.sr.ht/~jakintosh/gnap/internal/database"
	"git.sr.ht/~jakintosh/gnap/internal/keys"
	"git.sr.ht/~jakintosh/gnap/internal/service"
	"git.sr.ht/~jakintosh/gnap/internal/session"
	jose "github.com/go-jose/go-jose/v4"
)

const (
	TestAuthServerDomain     = "https://as.test"
	TestIdentityServerDomain = "https://idp.test/consent"
	TestIDPSecret            = "test-idp-secret"
	TestClientKeyID          = "test-client-key"
	TestContinueWait         = 5
)

// TestEnv provides all dependencies needed for testing.
type TestEnv struct {
	Store    *database.SQLiteStore
	Service  *service.Service
	Registry *keys.Registry
	Sessions *session.Manager
	Router   http.Handler

	KeyDir        string
	ClientPrivKey ed25519.PrivateKey
}

// SetupTestEnv creates an isolated test environment with an in-memory
// SQLite store and a key registry holding one registered client key.
func SetupTestEnv(
	t *testing.T,
) *TestEnv {
	t.Helper()

	store := database.NewSQLiteStore(":memory:")
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	keyDir := t.TempDir()
	privKey := WriteTestClientKey(t, keyDir, TestClientKeyID)
	registry := keys.NewRegistry(keyDir)

	svc := service.New(
		store.GrantStore(),
		store.AccessTokenStore(),
		TestAuthServerDomain,
		10*time.Minute,
	)
	sessions := session.NewManager(store.SessionStore())

	a := api.New(
		svc,
		sessions,
		registry,
		TestIDPSecret,
		TestIdentityServerDomain,
		TestContinueWait,
	)

	return &TestEnv{
		Store:         store,
		Service:       svc,
		Registry:      registry,
		Sessions:      sessions,
		Router:        a.Router(),
		KeyDir:        keyDir,
		ClientPrivKey: privKey,
	}
}

// WriteTestClientKey generates an Ed25519 keypair, writes the public half as
// a JWK file into dir, and returns the private key for signing.
func WriteTestClientKey(
	t *testing.T,
	dir string,
	keyID string,
) ed25519.PrivateKey {
	t.Helper()

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate client key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       pubKey,
		KeyID:     keyID,
		Algorithm: "EdDSA",
		Use:       "sig",
	}
	data, err := json.Marshal(jwk)
	if err != nil {
		t.Fatalf("failed to marshal client key: %v", err)
	}

	path := filepath.Join(dir, keyID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write client key: %v", err)
	}
	return privKey
}

// InitiateTestGrant creates a pending grant through the service layer.
func (env *TestEnv) InitiateTestGrant(
	t *testing.T,
) *service.Grant {
	t.Helper()

	grant, err := env.Service.InitiateGrant(
		t.Context(),
		TestGrantRequest(),
		TestClientKeyID,
	)
	if err != nil {
		t.Fatalf("failed to initiate test grant: %v", err)
	}
	return grant
}

// TestGrantRequest builds a minimal valid initiation request.
func TestGrantRequest() *service.GrantRequest {
	return &service.GrantRequest{
		AccessToken: service.GrantAccessTokenRequest{
			Access: []service.Access{
				{Type: "payment", Actions: []string{"read"}},
			},
		},
		Interact: service.InteractRequest{
			Start: []string{"redirect"},
			Finish: &service.InteractFinish{
				Method: "redirect",
				URI:    "https://client.test/callback",
				Nonce:  "client-nonce",
			},
		},
	}
}
