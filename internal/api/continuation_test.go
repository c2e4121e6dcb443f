package api_test

import (
	"net/http"
	"strings"
	"testing"

	"git.sr.ht/~jakintosh/gnap/internal/testutil"
)

// grantedContinuation initiates a grant, approves it out of band, and
// returns the continuation path plus the pieces a client would hold.
func grantedContinuation(
	t *testing.T,
	env *testutil.TestEnv,
) (path string, token string, interactRef string) {
	t.Helper()

	response := createGrant(t, env)
	path = asPath(t, response.Continue.URI)
	token = response.Continue.AccessToken.Value

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) != 2 {
		t.Fatalf("unexpected continue uri path: %s", path)
	}
	grant, err := env.Store.GrantStore().GetByContinueID(t.Context(), segments[1])
	if err != nil {
		t.Fatalf("GetByContinueID failed: %v", err)
	}
	if err := env.Service.Approve(t.Context(), grant.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	return path, token, grant.InteractRef
}

func continueGrant(
	t *testing.T,
	env *testutil.TestEnv,
	path string,
	token string,
	interactRef string,
	out any,
) testutil.HTTPResult {
	t.Helper()

	body := `{"interact_ref": "` + interactRef + `"}`
	headers := testutil.SignedHeaders(
		t, env.ClientPrivKey, testutil.TestClientKeyID,
		http.MethodPost, path, body,
	)
	if token != "" {
		headers = append(headers, testutil.Header{
			Key:   "Authorization",
			Value: "GNAP " + token,
		})
	}
	return testutil.PostJSON(env.Router, path, body, out, headers...)
}

func TestContinueGrant_MissingToken(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, _, interactRef := grantedContinuation(t, env)

	result := continueGrant(t, env, path, "", interactRef, nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)
	if !strings.Contains(string(result.Body), "invalid_request") {
		t.Errorf("body = %s, want invalid_request", result.Body)
	}
}

func TestContinueGrant_MissingInteractRef(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, token, _ := grantedContinuation(t, env)

	result := continueGrant(t, env, path, token, "", nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)
	if !strings.Contains(string(result.Body), "invalid_request") {
		t.Errorf("body = %s, want invalid_request", result.Body)
	}
}

func TestContinueGrant_WrongToken(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, _, interactRef := grantedContinuation(t, env)

	result := continueGrant(t, env, path, "not-the-token", interactRef, nil)
	testutil.ExpectStatus(t, http.StatusNotFound, result)
	if !strings.Contains(string(result.Body), "unknown_request") {
		t.Errorf("body = %s, want unknown_request", result.Body)
	}
}

func TestContinueGrant_Pending(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	// initiated but never approved
	response := createGrant(t, env)
	path := asPath(t, response.Continue.URI)

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	grant, err := env.Store.GrantStore().GetByContinueID(t.Context(), segments[1])
	if err != nil {
		t.Fatalf("GetByContinueID failed: %v", err)
	}

	result := continueGrant(t, env, path, response.Continue.AccessToken.Value, grant.InteractRef, nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)
	if !strings.Contains(string(result.Body), "request_denied") {
		t.Errorf("body = %s, want request_denied", result.Body)
	}
}

func TestContinueGrant_SecondMintDenied(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, token, interactRef := grantedContinuation(t, env)

	first := continueGrant(t, env, path, token, interactRef, nil)
	testutil.ExpectStatus(t, http.StatusOK, first)

	second := continueGrant(t, env, path, token, interactRef, nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, second)
	if !strings.Contains(string(second.Body), "request_denied") {
		t.Errorf("body = %s, want request_denied", second.Body)
	}
}

func TestRevokeGrant_BlocksContinuation(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, token, interactRef := grantedContinuation(t, env)

	revoke := testutil.Do(
		env.Router, http.MethodDelete, path, "", nil,
		testutil.Header{Key: "Authorization", Value: "GNAP " + token},
	)
	testutil.ExpectStatus(t, http.StatusNoContent, revoke)

	result := continueGrant(t, env, path, token, interactRef, nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)
	if !strings.Contains(string(result.Body), "request_denied") {
		t.Errorf("continue after revoke: body = %s, want request_denied", result.Body)
	}
}

func TestRevokeGrant_WrongToken(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, _, _ := grantedContinuation(t, env)

	result := testutil.Do(
		env.Router, http.MethodDelete, path, "", nil,
		testutil.Header{Key: "Authorization", Value: "GNAP not-the-token"},
	)
	testutil.ExpectStatus(t, http.StatusNotFound, result)
}

func TestRevokeToken(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	path, token, interactRef := grantedContinuation(t, env)

	var minted struct {
		AccessToken struct {
			Manage string `json:"manage"`
		} `json:"access_token"`
	}
	result := continueGrant(t, env, path, token, interactRef, &minted)
	testutil.ExpectStatus(t, http.StatusOK, result)

	managePath := asPath(t, minted.AccessToken.Manage)

	revoke := testutil.Do(env.Router, http.MethodDelete, managePath, "", nil)
	testutil.ExpectStatus(t, http.StatusNoContent, revoke)

	again := testutil.Do(env.Router, http.MethodDelete, managePath, "", nil)
	testutil.ExpectStatus(t, http.StatusNotFound, again)
}
