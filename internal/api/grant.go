package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"git.sr.ht/~jakintosh/gnap/internal/service"
)

type grantInteractResponse struct {
	Redirect string `json:"redirect"`
	Finish   string `json:"finish"`
}

type grantContinueToken struct {
	Value string `json:"value"`
}

type grantContinueResponse struct {
	AccessToken grantContinueToken `json:"access_token"`
	URI         string             `json:"uri"`
	Wait        int                `json:"wait"`
}

type grantResponse struct {
	Interact grantInteractResponse `json:"interact"`
	Continue grantContinueResponse `json:"continue"`
}

// CreateGrant handles grant initiation. The request reaches this handler
// only after its message signature verified.
func (a *API) CreateGrant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiatesJSON(r) {
			logApiErr(r, "content negotiation failed")
			returnError(w, http.StatusNotAcceptable, "invalid_request")
			return
		}

		keyID, ok := clientKeyID(r)
		if !ok {
			logApiErr(r, "no verified client key on request")
			returnError(w, http.StatusUnauthorized, "invalid_client")
			return
		}

		var req service.GrantRequest
		if ok := decodeRequest(&req, w, r); !ok {
			return
		}

		grant, err := a.service.InitiateGrant(r.Context(), &req, keyID)
		if err != nil {
			if errors.Is(err, service.ErrInvalidRequest) {
				logApiErr(r, fmt.Sprintf("invalid grant request: %v", err))
				returnError(w, http.StatusBadRequest, "invalid_request")
				return
			}
			logApiErr(r, fmt.Sprintf("failed to initiate grant: %v", err))
			returnError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		domain := a.service.AuthServerDomain()
		response := grantResponse{
			Interact: grantInteractResponse{
				Redirect: fmt.Sprintf("%s/interact/%s/%s", domain, grant.InteractID, grant.InteractNonce),
				Finish:   grant.InteractNonce,
			},
			Continue: grantContinueResponse{
				AccessToken: grantContinueToken{Value: grant.ContinueToken},
				URI:         fmt.Sprintf("%s/continue/%s", domain, grant.ContinueID),
				Wait:        a.continueWaitSeconds,
			},
		}

		returnJsonStatus(&response, w, http.StatusCreated)
	}
}

func negotiatesJSON(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return false
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}
