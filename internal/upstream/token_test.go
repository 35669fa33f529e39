package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateAcceptsOnly2xx(t *testing.T) {
	var gotAuth string
	statuses := make(chan int, 1)
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/" {
			t.Errorf("validation hit %q, want /api/", r.URL.Path)
		}
		w.WriteHeader(<-statuses)
	}))
	defer identity.Close()

	v := NewTokenValidator(identity.URL)
	ctx := context.Background()

	statuses <- http.StatusOK
	if err := v.Validate(ctx, "good-token"); err != nil {
		t.Errorf("Validate with 200: %v", err)
	}
	if gotAuth != "Bearer good-token" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusFound} {
		statuses <- status
		if err := v.Validate(ctx, "token"); err == nil {
			t.Errorf("Validate with status %d: expected error, got nil", status)
		}
	}
}

func TestValidateFailsClosedOnNetworkError(t *testing.T) {
	v := NewTokenValidator("http://127.0.0.1:1")
	if err := v.Validate(context.Background(), "token"); err == nil {
		t.Fatal("expected error for unreachable identity endpoint, got nil")
	}
}
