// Package ratelimit admits or rejects AI-eligible messages per (tenant, user)
// pair using a sliding window of admission timestamps.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultMaxPrompts = 3
	DefaultWindow     = 8 * time.Second
)

// Config bounds each (tenant, user) pair to MaxPrompts admissions within any
// trailing Window. MaxPrompts <= 0 disables limiting.
type Config struct {
	MaxPrompts int
	Window     time.Duration
}

func (c Config) normalized() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Limiter decides admission. Rejections never consume quota.
type Limiter interface {
	Admit(ctx context.Context, tenantID, userID string) bool
}

func pairKey(tenantID, userID string) string {
	return strings.TrimSpace(tenantID) + "\x00" + strings.TrimSpace(userID)
}
