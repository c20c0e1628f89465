package router

import (
	"errors"
	"fmt"

	"github.com/quailyquaily/guildmind/llm"
)

type Mode string

const (
	ModeKeyword    Mode = "keyword"
	ModeContinuous Mode = "continuous"
)

// Outcome is the terminal state Handle reached for a message.
type Outcome string

const (
	OutcomeSelf        Outcome = "self"
	OutcomeDirect      Outcome = "direct"
	OutcomeCommand     Outcome = "command"
	OutcomeKeyword     Outcome = "keyword"
	OutcomeContinuous  Outcome = "continuous"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
	OutcomeIgnored     Outcome = "ignored"
)

const (
	NoticeDirect   = "I currently only operate in server channels, not DMs."
	NoticeDisabled = "My AI capabilities are currently disabled (model not loaded)."
	NoticeEmpty    = "I received that, but I don't have a specific response right now."

	noticeKeywordFailure    = "Sorry, I couldn't process that keyword request right now."
	noticeContinuousFailure = "Sorry, I couldn't continue our conversation right now."
)

func rateLimitNotice(mode Mode, mention string) string {
	if mode == ModeContinuous {
		return fmt.Sprintf("%s, you're sending messages too quickly in this AI channel! Please wait a moment.", mention)
	}
	return fmt.Sprintf("%s, you're asking for AI responses a bit too quickly! Please wait a moment.", mention)
}

func failureNotice(mode Mode, err error) string {
	var blocked *llm.BlockedError
	switch {
	case errors.Is(err, llm.ErrDisabled):
		return NoticeDisabled
	case errors.As(err, &blocked):
		reason := blocked.Reason
		if reason == "" {
			reason = "unspecified"
		}
		return "My safety filters prevented a response: " + reason
	case errors.Is(err, llm.ErrEmptyResponse):
		return NoticeEmpty
	case mode == ModeContinuous:
		return noticeContinuousFailure
	default:
		return noticeKeywordFailure
	}
}
