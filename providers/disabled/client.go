// Package disabled is the degraded-mode backend used when no model is
// configured. Every call fails with llm.ErrDisabled.
package disabled

import (
	"context"

	"github.com/quailyquaily/guildmind/llm"
)

type Client struct{}

func New() Client { return Client{} }

func (Client) Chat(context.Context, llm.Request) (llm.Result, error) {
	return llm.Result{}, llm.ErrDisabled
}
