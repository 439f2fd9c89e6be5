package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeScenarioNotFound, "scenario missing")
	other := New(CodeScenarioNotFound, "different message, same code")

	if !errors.Is(other, base) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(New(CodeSessionNotFound, "x"), base) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := Wrap(CodeScriptLoadFailed, "load scenario script", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if wrapped.Error() != "load scenario script" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeScenarioOpOutOfOrder, http.StatusBadRequest},
		{CodeReplayStepOutOfRange, http.StatusBadRequest},
		{CodePlaybackRunning, http.StatusConflict},
		{CodeScenarioNotFound, http.StatusNotFound},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
