package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestBlockedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("chat: %w", &BlockedError{Reason: "SAFETY"})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("errors.Is(err, ErrBlocked) = false")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Reason != "SAFETY" {
		t.Fatalf("errors.As() = %+v", blocked)
	}
	if errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("blocked error matched ErrEmptyResponse")
	}
}

func TestBlockedErrorMessage(t *testing.T) {
	if got := (&BlockedError{}).Error(); got != "llm: response blocked: unspecified" {
		t.Fatalf("Error() = %q", got)
	}
}
