package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"git.sr.ht/~jakintosh/gnap/internal/service"
	"github.com/gorilla/mux"
)

// StartInteraction is the user agent's entry point: it resolves the grant by
// its interaction capability pair, binds the browser session to the
// interaction nonce, and hands the user agent off to the identity provider.
func (a *API) StartInteraction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		interactID, nonce := vars["id"], vars["nonce"]

		grant, err := a.service.GetByInteraction(r.Context(), interactID, nonce)
		if err != nil {
			if errors.Is(err, service.ErrUnknownGrant) {
				returnError(w, http.StatusUnauthorized, "unknown_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to resolve grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		// The initiating client's registration must still be valid before
		// the resource owner is asked to approve anything.
		if _, err := a.keys.GetKey(grant.ClientKeyID); err != nil {
			logApiErr(r, fmt.Sprintf("client key no longer resolvable: %v", err))
			returnError(w, http.StatusUnauthorized, "invalid_client")
			return
		}

		if err := a.sessions.Bind(r.Context(), w, grant.InteractNonce); err != nil {
			logApiErr(r, fmt.Sprintf("failed to bind session: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		idpURL, err := url.Parse(a.identityServerDomain)
		if err != nil {
			logApiErr(r, fmt.Sprintf("bad identity server domain: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		q := idpURL.Query()
		q.Set("interactRef", grant.InteractRef)
		q.Set("nonce", grant.InteractNonce)
		idpURL.RawQuery = q.Encode()

		http.Redirect(w, r, idpURL.String(), http.StatusFound)
	}
}

// AcceptGrant records the resource owner's approval, relayed by the IdP.
// Re-accepting a granted grant is reported but changes nothing.
func (a *API) AcceptGrant() http.HandlerFunc {
	return a.resolveInteraction(func(grant *service.Grant, w http.ResponseWriter, r *http.Request) {
		err := a.service.Approve(r.Context(), grant.ID)
		switch {
		case err == nil:
			returnJson(&interactionResponse{RedirectURI: a.finishURI(grant)}, w)
		case errors.Is(err, service.ErrAlreadyGranted):
			returnJson(&interactionResponse{
				RedirectURI: a.finishURI(grant),
				Result:      "already_granted",
			}, w)
		case errors.Is(err, service.ErrDenied):
			returnError(w, http.StatusUnauthorized, "user_denied")
		default:
			logApiErr(r, fmt.Sprintf("failed to approve grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
		}
	})
}

// RejectGrant records the resource owner's denial, relayed by the IdP. A
// grant that already reached granted is never unwound.
func (a *API) RejectGrant() http.HandlerFunc {
	return a.resolveInteraction(func(grant *service.Grant, w http.ResponseWriter, r *http.Request) {
		err := a.service.Deny(r.Context(), grant.ID)
		switch {
		case err == nil:
			returnJson(&interactionResponse{RedirectURI: a.finishURI(grant)}, w)
		case errors.Is(err, service.ErrAlreadyGranted):
			returnJson(&interactionResponse{
				RedirectURI: a.finishURI(grant),
				Result:      "already_granted",
			}, w)
		case errors.Is(err, service.ErrDenied):
			returnError(w, http.StatusUnauthorized, "user_denied")
		default:
			logApiErr(r, fmt.Sprintf("failed to deny grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
		}
	})
}

// GrantDetails returns the grant's requested access rights so the IdP can
// render a consent screen. Only protocol fields leave the server; internal
// row metadata never appears in the response model.
func (a *API) GrantDetails() http.HandlerFunc {
	return a.resolveInteraction(func(grant *service.Grant, w http.ResponseWriter, r *http.Request) {
		returnJson(&detailsResponse{Access: grant.Access}, w)
	})
}

// FinishInteraction releases the interaction outcome to the client, but only
// to the user agent whose session was bound at start time. A session nonce
// mismatch reveals nothing about whether the grant exists.
func (a *API) FinishInteraction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		interactID, nonce := vars["id"], vars["nonce"]

		sessionNonce, err := a.sessions.Nonce(r.Context(), r)
		if err != nil || !secretsEqual(sessionNonce, nonce) {
			logApiErr(r, "session nonce mismatch")
			returnError(w, http.StatusUnauthorized, "invalid_request")
			return
		}

		grant, err := a.service.GetByInteraction(r.Context(), interactID, nonce)
		if err != nil {
			if errors.Is(err, service.ErrUnknownGrant) {
				returnError(w, http.StatusNotFound, "unknown_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to resolve grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		clientRedirect, err := url.Parse(grant.FinishURI)
		if err != nil {
			logApiErr(r, fmt.Sprintf("bad finish uri on grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		a.sessions.Clear(r.Context(), r)

		q := clientRedirect.Query()
		switch service.FinishResult(grant) {
		case service.FinishGranted:
			hash := service.InteractFinishHash(
				grant.ClientNonce,
				grant.InteractNonce,
				grant.InteractRef,
				a.service.InteractStartURL(grant.InteractID),
			)
			q.Set("hash", hash)
			q.Set("interact_ref", grant.InteractRef)
		case service.FinishRejected:
			q.Set("result", "grant_rejected")
		default:
			q.Set("result", "grant_invalid")
		}
		clientRedirect.RawQuery = q.Encode()

		http.Redirect(w, r, clientRedirect.String(), http.StatusFound)
	}
}

type interactionResponse struct {
	RedirectURI string `json:"redirectUri"`
	Result      string `json:"result,omitempty"`
}

type detailsResponse struct {
	Access []service.Access `json:"access"`
}

// resolveInteraction wraps the IdP-facing handlers: shared secret first,
// then grant resolution by the interaction pair.
func (a *API) resolveInteraction(
	handle func(grant *service.Grant, w http.ResponseWriter, r *http.Request),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.authorizeIdP(w, r) {
			return
		}

		vars := mux.Vars(r)
		grant, err := a.service.GetByInteraction(r.Context(), vars["id"], vars["nonce"])
		if err != nil {
			if errors.Is(err, service.ErrUnknownGrant) {
				returnError(w, http.StatusNotFound, "unknown_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to resolve grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		handle(grant, w, r)
	}
}

func (a *API) finishURI(grant *service.Grant) string {
	return fmt.Sprintf(
		"%s/interact/%s/%s/finish",
		a.service.AuthServerDomain(),
		grant.InteractID,
		grant.InteractNonce,
	)
}
