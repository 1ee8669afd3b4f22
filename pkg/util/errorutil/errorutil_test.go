package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"domain error passes through", NewConflict("taken", nil), "CONFLICT", http.StatusConflict},
		{"wrapped domain error", fmt.Errorf("open: %w", NewNotFound("ticket", nil)), "NOT_FOUND", http.StatusNotFound},
		{"no rows", pgx.ErrNoRows, "NOT_FOUND", http.StatusNotFound},
		{"anything else", errors.New("boom"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			if got.Code != tt.wantCode || got.HTTPStatus != tt.wantStatus {
				t.Fatalf("got %s/%d, want %s/%d", got.Code, got.HTTPStatus, tt.wantCode, tt.wantStatus)
			}
		})
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil error should map to nil")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("wrapped ErrNoRows should be not found")
	}
	if !IsNotFound(NewNotFound("ticket", map[string]any{"id": "1"})) {
		t.Error("NewNotFound should be not found")
	}
	if IsNotFound(NewConflict("x", nil)) {
		t.Error("conflict is not a not-found error")
	}
}

func TestDomainErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewForbidden("nope"))
	if !errors.Is(err, NewForbidden("other message")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, NewUnauthorized("nope")) {
		t.Error("different codes must not match")
	}
}
