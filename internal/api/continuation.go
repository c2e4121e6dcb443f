package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"git.sr.ht/~jakintosh/gnap/internal/service"
	"github.com/gorilla/mux"
)

const continuationScheme = "GNAP "

type continueRequest struct {
	InteractRef string `json:"interact_ref"`
}

type continueAccessToken struct {
	Value     string           `json:"value"`
	Manage    string           `json:"manage"`
	Access    []service.Access `json:"access"`
	ExpiresIn int64            `json:"expires_in"`
}

type continueResponse struct {
	AccessToken continueAccessToken `json:"access_token"`
}

// ContinueGrant resumes a grant after interaction and mints its access
// token. The continuation id, bearer token, and interact reference must all
// three match the same grant.
func (a *API) ContinueGrant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		continueID := mux.Vars(r)["id"]
		continueToken := continuationToken(r)

		var req continueRequest
		if ok := decodeRequest(&req, w, r); !ok {
			return
		}

		if continueID == "" || continueToken == "" || req.InteractRef == "" {
			logApiErr(r, "missing continuation credentials")
			returnError(w, http.StatusUnauthorized, "invalid_request")
			return
		}

		grant, token, err := a.service.Continue(
			r.Context(),
			continueID,
			continueToken,
			req.InteractRef,
		)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUnknownGrant):
				returnError(w, http.StatusNotFound, "unknown_request")
			case errors.Is(err, service.ErrRequestDenied),
				errors.Is(err, service.ErrTokenIssued):
				returnError(w, http.StatusUnauthorized, "request_denied")
			default:
				logApiErr(r, fmt.Sprintf("failed to continue grant: %v", err))
				returnError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}

		response := continueResponse{
			AccessToken: continueAccessToken{
				Value:     token.Value,
				Manage:    fmt.Sprintf("%s/token/%s", a.service.AuthServerDomain(), token.ManagementID),
				Access:    grant.Access,
				ExpiresIn: token.ExpiresIn,
			},
		}
		returnJson(&response, w)
	}
}

// RevokeGrant cancels a grant through its continuation credentials, deleting
// any issued access token along the way.
func (a *API) RevokeGrant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		continueID := mux.Vars(r)["id"]
		continueToken := continuationToken(r)
		if continueID == "" || continueToken == "" {
			logApiErr(r, "missing continuation credentials")
			returnError(w, http.StatusUnauthorized, "invalid_request")
			return
		}

		err := a.service.Revoke(r.Context(), continueID, continueToken)
		if err != nil {
			if errors.Is(err, service.ErrUnknownGrant) {
				returnError(w, http.StatusNotFound, "unknown_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to revoke grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// RevokeToken deletes the access token named by its management id.
func (a *API) RevokeToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		managementID := mux.Vars(r)["id"]

		err := a.service.RevokeAccessToken(r.Context(), managementID)
		if err != nil {
			if errors.Is(err, service.ErrTokenNotFound) {
				returnError(w, http.StatusNotFound, "unknown_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to revoke token: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func continuationToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, continuationScheme) {
		return ""
	}
	return strings.TrimPrefix(authorization, continuationScheme)
}
