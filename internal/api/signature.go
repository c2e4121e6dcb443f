package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"git.sr.ht/~jakintosh/gnap/pkg/httpsig"
)

type ctxKey string

const clientKeyContextKey ctxKey = "client-key-id"

// requireSignature verifies the HTTP message signature on a request before
// letting it through, and records the verified key id in the request
// context. Verification failures never degrade to treating the request as
// unsigned.
func (a *API) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigInput := r.Header.Get("Signature-Input")
		signature := r.Header.Get("Signature")
		if sigInput == "" || signature == "" {
			logApiErr(r, "missing signature headers")
			returnError(w, http.StatusUnauthorized, "invalid_signature")
			return
		}

		input, err := httpsig.ParseInput(sigInput)
		if err != nil {
			logApiErr(r, fmt.Sprintf("bad signature input: %v", err))
			returnError(w, http.StatusUnauthorized, "invalid_signature")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logApiErr(r, fmt.Sprintf("couldn't read body: %v", err))
			returnError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key, err := a.keys.GetKey(input.KeyID)
		if err != nil {
			logApiErr(r, fmt.Sprintf("unknown client key: %v", err))
			returnError(w, http.StatusUnauthorized, "invalid_client")
			return
		}

		base, err := input.SigningBase(r.Method, targetURI(r), body)
		if err != nil {
			logApiErr(r, fmt.Sprintf("couldn't build signing base: %v", err))
			returnError(w, http.StatusUnauthorized, "invalid_signature")
			return
		}

		if err := httpsig.Verify(key, base, signature); err != nil {
			logApiErr(r, "signature verification failed")
			returnError(w, http.StatusUnauthorized, "invalid_signature")
			return
		}

		ctx := context.WithValue(r.Context(), clientKeyContextKey, input.KeyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientKeyID extracts the key id recorded by requireSignature.
func clientKeyID(r *http.Request) (string, bool) {
	keyID, ok := r.Context().Value(clientKeyContextKey).(string)
	return keyID, ok
}

func targetURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
