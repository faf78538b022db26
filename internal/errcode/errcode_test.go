package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", New(ErrValidation, "missing"), http.StatusBadRequest},
		{"conflict wrapped", fmt.Errorf("register: %w", New(ErrConflict, "taken")), http.StatusConflict},
		{"auth", ErrAuth, http.StatusUnauthorized},
		{"not found", New(ErrNotFound, "User not found"), http.StatusNotFound},
		{"capture", New(ErrCapture, "render failed"), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("%s: expected %d got %d", tc.name, tc.want, got)
		}
	}
}

func TestMessageHidesInternalDetails(t *testing.T) {
	if got := Message(fmt.Errorf("query: %w", errors.New("pq: connection refused")), "Internal Server Error"); got != "Internal Server Error" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := Message(New(ErrInternal, "db exploded"), "Internal Server Error"); got != "Internal Server Error" {
		t.Fatalf("expected fallback for internal kind, got %q", got)
	}
	if got := Message(fmt.Errorf("save: %w", New(ErrConflict, "Username already taken")), "x"); got != "Username already taken" {
		t.Fatalf("unexpected message %q", got)
	}
}
