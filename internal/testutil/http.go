package testutil

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"git.sr.ht/~jakintosh/gnap/pkg/httpsig"
)

// RequestHost is the host used for in-process test requests; signed requests
// cover the full target URI, so signer and server must agree on it.
const RequestHost = "http://gnap.test"

// HTTPResult captures HTTP response details for test assertions.
type HTTPResult struct {
	Code    int
	Error   error
	Headers http.Header
	Body    []byte
}

// Header represents an HTTP header key-value pair.
type Header struct {
	Key   string
	Value string
}

// ContentTypeJSON returns a header for JSON content type.
func ContentTypeJSON() Header {
	return Header{
		Key:   "Content-Type",
		Value: "application/json",
	}
}

// IDPSecret returns the shared secret header the IdP endpoints require.
func IDPSecret(value string) Header {
	return Header{
		Key:   "x-idp-secret",
		Value: value,
	}
}

// ExpectStatus validates the HTTP status code and fails the test if it
// doesn't match.
func ExpectStatus(
	t *testing.T,
	expected int,
	result HTTPResult,
) {
	t.Helper()
	if result.Error != nil {
		t.Fatalf("request error: %v", result.Error)
	}
	if result.Code != expected {
		t.Fatalf("expected status %d, got %d. Body: %s", expected, result.Code, string(result.Body))
	}
}

// ExpectRedirect validates a redirect response and returns the Location
// header.
func ExpectRedirect(
	t *testing.T,
	result HTTPResult,
) string {
	t.Helper()
	if result.Code != http.StatusFound {
		t.Fatalf("expected redirect (302), got %d. Body: %s", result.Code, string(result.Body))
	}
	location := result.Headers.Get("Location")
	if location == "" {
		t.Fatal("expected Location header in redirect")
	}
	return location
}

// Do performs a request against the router and optionally decodes the JSON
// response.
func Do(
	router http.Handler,
	method string,
	url string,
	body string,
	response any,
	headers ...Header,
) HTTPResult {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, RequestHost+url, reader)
	res := httptest.NewRecorder()
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}
	router.ServeHTTP(res, req)

	if response != nil && res.Body.Len() > 0 {
		if err := json.Unmarshal(res.Body.Bytes(), response); err != nil {
			return HTTPResult{
				Code:    res.Code,
				Error:   fmt.Errorf("failed to decode JSON: %v\n%s", err, res.Body.String()),
				Headers: res.Header(),
				Body:    res.Body.Bytes(),
			}
		}
	}

	return HTTPResult{Code: res.Code, Headers: res.Header(), Body: res.Body.Bytes()}
}

// Get performs a GET request.
func Get(
	router http.Handler,
	url string,
	response any,
	headers ...Header,
) HTTPResult {
	return Do(router, http.MethodGet, url, "", response, headers...)
}

// PostJSON performs a POST with a JSON body.
func PostJSON(
	router http.Handler,
	url string,
	body string,
	response any,
	headers ...Header,
) HTTPResult {
	headers = append(headers, ContentTypeJSON())
	return Do(router, http.MethodPost, url, body, response, headers...)
}

// SignedHeaders produces message signature headers for a request, covering
// the body digest when a body is present.
func SignedHeaders(
	t *testing.T,
	privKey ed25519.PrivateKey,
	keyID string,
	method string,
	url string,
	body string,
) []Header {
	t.Helper()

	var bodyBytes []byte
	if body != "" {
		bodyBytes = []byte(body)
	}

	input := httpsig.NewInput(keyID, len(bodyBytes) > 0)
	signature, err := httpsig.Sign(privKey, input, method, RequestHost+url, bodyBytes)
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}

	headers := []Header{
		{Key: "Signature-Input", Value: input.Header()},
		{Key: "Signature", Value: signature},
	}
	if len(bodyBytes) > 0 {
		headers = append(headers, Header{
			Key:   "Content-Digest",
			Value: httpsig.ContentDigest(bodyBytes),
		})
	}
	return headers
}
