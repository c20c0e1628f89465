// Package router classifies incoming chat messages and drives the AI
// exchange for the keyword and continuous-channel paths.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/quailyquaily/guildmind/commands"
	"github.com/quailyquaily/guildmind/conversation"
	"github.com/quailyquaily/guildmind/llm"
	"github.com/quailyquaily/guildmind/persona"
	"github.com/quailyquaily/guildmind/ratelimit"
)

const (
	DefaultPrompt = "You are a helpful AI assistant."

	profileContextPrefix = "\n\nUser profile context: "
)

var DefaultKeywords = []string{"ai", "bot", "assistant"}

// Message is one platform event. Ids are the platform's identifiers in
// string form.
type Message struct {
	TenantID       string
	ChannelID      string
	UserID         string
	UserMention    string
	ChannelMention string
	Text           string
	IsSelf         bool
	IsDirect       bool
}

// Replier sends text back to the channel or conversation msg came from.
type Replier interface {
	Reply(ctx context.Context, msg Message, text string) error
}

type ReplierFunc func(ctx context.Context, msg Message, text string) error

func (f ReplierFunc) Reply(ctx context.Context, msg Message, text string) error {
	return f(ctx, msg, text)
}

type Options struct {
	Saver    *conversation.Saver
	Personas *persona.Holder
	Commands *commands.Surface
	Limiter  ratelimit.Limiter
	Client   llm.Client
	Replier  Replier
	Logger   *slog.Logger

	Model          string
	Keywords       []string
	DefaultPrompt  string
	DefaultPersona string
}

type Router struct {
	saver    *conversation.Saver
	personas *persona.Holder
	commands *commands.Surface
	limiter  ratelimit.Limiter
	client   llm.Client
	replier  Replier
	logger   *slog.Logger

	model          string
	defaultPrompt  string
	defaultPersona string

	kwMu     sync.RWMutex
	keywords []string
}

func New(opts Options) (*Router, error) {
	if opts.Saver == nil {
		return nil, fmt.Errorf("router: saver is required")
	}
	if opts.Commands == nil {
		return nil, fmt.Errorf("router: command surface is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("router: rate limiter is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("router: completion client is required")
	}
	r := &Router{
		saver:          opts.Saver,
		personas:       opts.Personas,
		commands:       opts.Commands,
		limiter:        opts.Limiter,
		client:         opts.Client,
		replier:        opts.Replier,
		logger:         opts.Logger,
		model:          strings.TrimSpace(opts.Model),
		defaultPrompt:  strings.TrimSpace(opts.DefaultPrompt),
		defaultPersona: strings.ToLower(strings.TrimSpace(opts.DefaultPersona)),
	}
	if r.personas == nil {
		r.personas = persona.NewStaticHolder(nil)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.defaultPrompt == "" {
		r.defaultPrompt = DefaultPrompt
	}
	kws := opts.Keywords
	if kws == nil {
		kws = DefaultKeywords
	}
	for _, kw := range kws {
		r.AddKeyword(kw)
	}
	return r, nil
}

// AddKeyword appends kw (lower-cased) unless already present.
func (r *Router) AddKeyword(kw string) {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return
	}
	r.kwMu.Lock()
	defer r.kwMu.Unlock()
	for _, existing := range r.keywords {
		if existing == kw {
			return
		}
	}
	r.keywords = append(r.keywords, kw)
}

func (r *Router) Keywords() []string {
	r.kwMu.RLock()
	defer r.kwMu.RUnlock()
	return append([]string(nil), r.keywords...)
}

func (r *Router) matchesKeyword(text string) bool {
	lower := strings.ToLower(text)
	r.kwMu.RLock()
	defer r.kwMu.RUnlock()
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Handle classifies msg and runs the matching path to completion. States are
// evaluated in a fixed order; the first match is terminal.
func (r *Router) Handle(ctx context.Context, msg Message) Outcome {
	if msg.IsSelf {
		return OutcomeSelf
	}
	logger := r.logger.With("msg_id", uuid.NewString(), "tenant_id", msg.TenantID, "channel_id", msg.ChannelID, "user_id", msg.UserID)

	if msg.IsDirect || strings.TrimSpace(msg.TenantID) == "" {
		r.reply(ctx, logger, msg, NoticeDirect)
		return OutcomeDirect
	}

	if r.commands.IsCommand(msg.Text) {
		text := r.commands.Execute(ctx, commands.Invocation{
			TenantID:       msg.TenantID,
			ChannelID:      msg.ChannelID,
			UserID:         msg.UserID,
			ChannelMention: msg.ChannelMention,
			Text:           msg.Text,
		})
		if text != "" {
			r.reply(ctx, logger, msg, text)
		}
		return OutcomeCommand
	}

	tenant := r.saver.Store().GetOrCreateTenant(msg.TenantID)
	if r.matchesKeyword(msg.Text) && !tenant.IsKeywordIgnored(msg.ChannelID) {
		return r.exchange(ctx, logger, tenant, msg, ModeKeyword)
	}
	if tenant.IsContinuous(msg.ChannelID) {
		return r.exchange(ctx, logger, tenant, msg, ModeContinuous)
	}
	return OutcomeIgnored
}

func (r *Router) exchange(ctx context.Context, logger *slog.Logger, tenant *conversation.Tenant, msg Message, mode Mode) Outcome {
	logger = logger.With("mode", string(mode))
	if !r.limiter.Admit(ctx, msg.TenantID, msg.UserID) {
		logger.Info("router_rate_limited")
		r.reply(ctx, logger, msg, rateLimitNotice(mode, msg.UserMention))
		return OutcomeRateLimited
	}

	system := r.resolvePersona(tenant, msg.ChannelID)
	var (
		user  *conversation.UserContext
		prior conversation.History
	)
	if mode == ModeKeyword {
		user = tenant.User(msg.UserID)
		prior = user.RollingHistory()
		if summary := strings.TrimSpace(user.ProfileSummary()); summary != "" {
			system += profileContextPrefix + summary
		}
	} else {
		prior = tenant.MainHistory()
	}

	req := llm.Request{
		Model:    r.model,
		System:   system,
		Messages: toMessages(prior, msg.Text),
	}
	res, err := r.client.Chat(ctx, req)
	if err != nil {
		logger.Warn("router_completion_error", "history_turns", len(prior), "error", err.Error())
		r.reply(ctx, logger, msg, failureNotice(mode, err))
		return OutcomeFailed
	}
	if err := r.send(ctx, msg, res.Text); err != nil {
		logger.Error("router_reply_error", "error", err.Error())
		return OutcomeFailed
	}

	if mode == ModeKeyword {
		user.AppendExchange(msg.Text, res.Text)
	} else {
		tenant.AppendMainExchange(msg.Text, res.Text)
	}
	_ = r.saver.Save(ctx, "router_"+string(mode))
	logger.Info("router_reply",
		"history_turns", len(prior)+2,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"duration", res.Duration.String(),
	)
	if mode == ModeKeyword {
		return OutcomeKeyword
	}
	return OutcomeContinuous
}

// resolvePersona returns the system prompt for a channel: the channel's
// persona, else the configured default persona, else the default prompt.
// A persona name missing from the catalog falls through without error.
func (r *Router) resolvePersona(tenant *conversation.Tenant, channelID string) string {
	catalog := r.personas.Current()
	if name, ok := tenant.ChannelPersona(channelID); ok {
		if prompt, ok := catalog.Resolve(name); ok {
			return prompt
		}
	}
	if r.defaultPersona != "" {
		if prompt, ok := catalog.Resolve(r.defaultPersona); ok {
			return prompt
		}
	}
	return r.defaultPrompt
}

func toMessages(prior conversation.History, text string) []llm.Message {
	out := make([]llm.Message, 0, len(prior)+1)
	for _, turn := range prior {
		role := llm.RoleUser
		if turn.Role == conversation.RoleModel {
			role = llm.RoleModel
		}
		out = append(out, llm.Message{Role: role, Content: turn.Text})
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: text})
}

func (r *Router) send(ctx context.Context, msg Message, text string) error {
	if r.replier == nil {
		return errors.New("router: no replier configured")
	}
	return r.replier.Reply(ctx, msg, text)
}

func (r *Router) reply(ctx context.Context, logger *slog.Logger, msg Message, text string) {
	if err := r.send(ctx, msg, text); err != nil {
		logger.Error("router_reply_error", "error", err.Error())
	}
}
