package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (a *API) Router() http.Handler {
	r := mux.NewRouter()

	// client-facing, message-signature gated
	r.Handle("/grants", a.requireSignature(a.CreateGrant())).Methods("POST")
	r.Handle("/continue/{id}", a.requireSignature(a.ContinueGrant())).Methods("POST")
	r.HandleFunc("/continue/{id}", a.RevokeGrant()).Methods("DELETE")
	r.HandleFunc("/token/{id}", a.RevokeToken()).Methods("DELETE")

	// user-agent facing
	r.HandleFunc("/interact/{id}/{nonce}", a.StartInteraction()).Methods("GET")
	r.HandleFunc("/interact/{id}/{nonce}/finish", a.FinishInteraction()).Methods("GET")

	// IdP-facing, shared-secret gated
	r.HandleFunc("/interact/{id}/{nonce}/accept", a.AcceptGrant()).Methods("POST")
	r.HandleFunc("/interact/{id}/{nonce}/reject", a.RejectGrant()).Methods("POST")
	r.HandleFunc("/grant/{id}/{nonce}", a.GrantDetails()).Methods("GET")

	return r
}
