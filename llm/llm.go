package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	// ErrDisabled is returned when no model is configured.
	ErrDisabled = errors.New("llm: model not loaded")
	// ErrBlocked is matched by BlockedError via errors.Is.
	ErrBlocked       = errors.New("llm: response blocked")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// BlockedError reports a safety refusal; Reason is the backend's label.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "unspecified"
	}
	return fmt.Sprintf("llm: response blocked: %s", reason)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

// Request carries the prior turns followed by the new user message as the
// last element. System is passed as the backend's system instruction.
type Request struct {
	Model    string
	System   string
	Messages []Message
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
