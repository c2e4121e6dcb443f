package service_test

import (
	"errors"
	"sync"
	"testing"

	"git.sr.ht/~jakintosh/gnap/internal/service"
	"git.sr.ht/~jakintosh/gnap/internal/testutil"
)

func TestInitiateGrant_Pending(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	if grant.State != service.GrantStatePending {
		t.Errorf("state = %s, want %s", grant.State, service.GrantStatePending)
	}
	if grant.ClientKeyID != testutil.TestClientKeyID {
		t.Errorf("clientKeyId = %s, want %s", grant.ClientKeyID, testutil.TestClientKeyID)
	}
	if grant.ClientNonce != "client-nonce" {
		t.Errorf("clientNonce = %s, want client-nonce", grant.ClientNonce)
	}
}

func TestInitiateGrant_DistinctTokens(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	tokens := map[string]string{
		"interactId":    grant.InteractID,
		"interactNonce": grant.InteractNonce,
		"interactRef":   grant.InteractRef,
		"continueId":    grant.ContinueID,
		"continueToken": grant.ContinueToken,
	}
	seen := map[string]string{}
	for name, value := range tokens {
		if value == "" {
			t.Errorf("%s is empty", name)
		}
		if other, dup := seen[value]; dup {
			t.Errorf("%s and %s share the same value", name, other)
		}
		seen[value] = name
	}
}

func TestInitiateGrant_PreservesAccessOrder(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	req := testutil.TestGrantRequest()
	req.AccessToken.Access = []service.Access{
		{Type: "payment", Actions: []string{"read", "create"}},
		{Type: "quote", Actions: []string{"read"}, Identifier: "q-1"},
		{Type: "account", Actions: []string{"list"}, Locations: []string{"https://wallet.test"}},
	}

	grant, err := env.Service.InitiateGrant(t.Context(), req, testutil.TestClientKeyID)
	if err != nil {
		t.Fatalf("InitiateGrant failed: %v", err)
	}

	// read back through the store to make sure order survives persistence
	stored, err := env.Service.GetByInteraction(t.Context(), grant.InteractID, grant.InteractNonce)
	if err != nil {
		t.Fatalf("GetByInteraction failed: %v", err)
	}
	if len(stored.Access) != 3 {
		t.Fatalf("access length = %d, want 3", len(stored.Access))
	}
	for i, access := range req.AccessToken.Access {
		if stored.Access[i].Type != access.Type {
			t.Errorf("access[%d].Type = %s, want %s", i, stored.Access[i].Type, access.Type)
		}
		if len(stored.Access[i].Actions) != len(access.Actions) {
			t.Errorf("access[%d] has %d actions, want %d", i, len(stored.Access[i].Actions), len(access.Actions))
		}
	}
	if stored.Access[1].Identifier != "q-1" {
		t.Errorf("access[1].Identifier = %s, want q-1", stored.Access[1].Identifier)
	}
	if len(stored.Access[2].Locations) != 1 || stored.Access[2].Locations[0] != "https://wallet.test" {
		t.Errorf("access[2].Locations = %v, want [https://wallet.test]", stored.Access[2].Locations)
	}
}

func TestInitiateGrant_InvalidRequests(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	cases := map[string]func(req *service.GrantRequest){
		"no access": func(req *service.GrantRequest) {
			req.AccessToken.Access = nil
		},
		"access without type": func(req *service.GrantRequest) {
			req.AccessToken.Access = []service.Access{{Actions: []string{"read"}}}
		},
		"access without actions": func(req *service.GrantRequest) {
			req.AccessToken.Access = []service.Access{{Type: "payment"}}
		},
		"no interact start": func(req *service.GrantRequest) {
			req.Interact.Start = nil
		},
		"start without redirect": func(req *service.GrantRequest) {
			req.Interact.Start = []string{"app"}
		},
		"no finish": func(req *service.GrantRequest) {
			req.Interact.Finish = nil
		},
		"finish without nonce": func(req *service.GrantRequest) {
			req.Interact.Finish.Nonce = ""
		},
		"relative finish uri": func(req *service.GrantRequest) {
			req.Interact.Finish.URI = "/callback"
		},
	}

	for name, mutate := range cases {
		req := testutil.TestGrantRequest()
		mutate(req)
		_, err := env.Service.InitiateGrant(t.Context(), req, testutil.TestClientKeyID)
		if !errors.Is(err, service.ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestGetByInteraction_MismatchIsUniform(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	// wrong nonce, wrong id, and wholly unknown pair must be identical
	_, errWrongNonce := env.Service.GetByInteraction(t.Context(), grant.InteractID, "wrong")
	_, errWrongID := env.Service.GetByInteraction(t.Context(), "wrong", grant.InteractNonce)
	_, errUnknown := env.Service.GetByInteraction(t.Context(), "nope", "nope")

	for _, err := range []error{errWrongNonce, errWrongID, errUnknown} {
		if !errors.Is(err, service.ErrUnknownGrant) {
			t.Errorf("expected ErrUnknownGrant, got %v", err)
		}
	}
	if errWrongNonce.Error() != errUnknown.Error() {
		t.Errorf("mismatch errors differ in shape: %q vs %q", errWrongNonce, errUnknown)
	}
}

func TestGetByContinuation_RequiresAllThree(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	if _, err := env.Service.GetByContinuation(
		t.Context(), grant.ContinueID, grant.ContinueToken, grant.InteractRef,
	); err != nil {
		t.Fatalf("matching triple failed: %v", err)
	}

	_, errToken := env.Service.GetByContinuation(t.Context(), grant.ContinueID, "wrong", grant.InteractRef)
	_, errRef := env.Service.GetByContinuation(t.Context(), grant.ContinueID, grant.ContinueToken, "wrong")
	_, errID := env.Service.GetByContinuation(t.Context(), "wrong", grant.ContinueToken, grant.InteractRef)

	for _, err := range []error{errToken, errRef, errID} {
		if !errors.Is(err, service.ErrUnknownGrant) {
			t.Errorf("expected ErrUnknownGrant, got %v", err)
		}
	}
}

func TestApprove_Twice(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	if err := env.Service.Approve(t.Context(), grant.ID); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}
	if err := env.Service.Approve(t.Context(), grant.ID); !errors.Is(err, service.ErrAlreadyGranted) {
		t.Errorf("second approve: expected ErrAlreadyGranted, got %v", err)
	}

	stored, err := env.Service.GetByInteraction(t.Context(), grant.InteractID, grant.InteractNonce)
	if err != nil {
		t.Fatalf("GetByInteraction failed: %v", err)
	}
	if stored.State != service.GrantStateGranted {
		t.Errorf("state = %s, want %s", stored.State, service.GrantStateGranted)
	}
}

func TestApprove_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	const callers = 16
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.Service.Approve(t.Context(), grant.ID)
		}(i)
	}
	wg.Wait()

	var wins, already int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrAlreadyGranted):
			already++
		default:
			t.Errorf("unexpected approve error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("fresh transitions = %d, want exactly 1", wins)
	}
	if already != callers-1 {
		t.Errorf("already-granted observations = %d, want %d", already, callers-1)
	}
}

func TestDeny_NeverUnwindsGranted(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	if err := env.Service.Approve(t.Context(), grant.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := env.Service.Deny(t.Context(), grant.ID); !errors.Is(err, service.ErrAlreadyGranted) {
		t.Errorf("deny on granted: expected ErrAlreadyGranted, got %v", err)
	}

	stored, err := env.Service.GetByInteraction(t.Context(), grant.InteractID, grant.InteractNonce)
	if err != nil {
		t.Fatalf("GetByInteraction failed: %v", err)
	}
	if stored.State != service.GrantStateGranted {
		t.Errorf("state = %s, want %s", stored.State, service.GrantStateGranted)
	}
}

func TestApprove_AfterDenyIsDenied(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)

	if err := env.Service.Deny(t.Context(), grant.ID); err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if err := env.Service.Approve(t.Context(), grant.ID); !errors.Is(err, service.ErrDenied) {
		t.Errorf("approve on rejected: expected ErrDenied, got %v", err)
	}
}

func TestRevoke_BlocksContinuation(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	grant := env.InitiateTestGrant(t)
	if err := env.Service.Approve(t.Context(), grant.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if err := env.Service.Revoke(t.Context(), grant.ContinueID, grant.ContinueToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	_, _, err := env.Service.Continue(
		t.Context(), grant.ContinueID, grant.ContinueToken, grant.InteractRef,
	)
	if !errors.Is(err, service.ErrRequestDenied) {
		t.Errorf("continue after revoke: expected ErrRequestDenied, got %v", err)
	}
}
