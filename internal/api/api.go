// Package api exposes the grant negotiation protocol over HTTP: grant
// initiation, the IdP interaction endpoints, continuation, and token
// management.
package api

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"git.sr.ht/~jakintosh/gnap/internal/service"
	"git.sr.ht/~jakintosh/gnap/internal/session"
)

// KeyResolver resolves a client's public signing key by key id.
type KeyResolver interface {
	GetKey(keyID string) (ed25519.PublicKey, error)
}

// API holds the handler dependencies. Construct with New and mount via
// Router.
type API struct {
	service  *service.Service
	sessions *session.Manager
	keys     KeyResolver

	idpSecret            string
	identityServerDomain string
	continueWaitSeconds  int
}

func New(
	svc *service.Service,
	sessions *session.Manager,
	keys KeyResolver,
	idpSecret string,
	identityServerDomain string,
	continueWaitSeconds int,
) *API {
	return &API{
		service:              svc,
		sessions:             sessions,
		keys:                 keys,
		idpSecret:            idpSecret,
		identityServerDomain: identityServerDomain,
		continueWaitSeconds:  continueWaitSeconds,
	}
}

func decodeRequest[T any](req *T, w http.ResponseWriter, r *http.Request) bool {
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logApiErr(r, "bad json request")
		returnError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func returnJson(data any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

func returnJsonStatus(data any, w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error string `json:"error"`
}

func returnError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code})
}

func logApiErr(r *http.Request, msg string) {
	log.Printf("%s %s: %s\n", r.Method, r.RequestURI, msg)
}

// secretsEqual compares a caller-supplied secret against the configured one
// without leaking the mismatch position or length through timing.
func secretsEqual(supplied string, configured string) bool {
	suppliedDigest := sha256.Sum256([]byte(supplied))
	configuredDigest := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(suppliedDigest[:], configuredDigest[:]) == 1
}

// authorizeIdP gates the IdP-facing endpoints on the shared secret header.
func (a *API) authorizeIdP(w http.ResponseWriter, r *http.Request) bool {
	secret := r.Header.Get("x-idp-secret")
	if secret == "" || !secretsEqual(secret, a.idpSecret) {
		logApiErr(r, "bad idp secret")
		returnError(w, http.StatusUnauthorized, "invalid_interaction")
		return false
	}
	return true
}
