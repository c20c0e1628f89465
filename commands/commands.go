// Package commands implements the prefix-triggered administrative surface.
// Every command produces reply text; none returns a Go error to the caller.
package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/quailyquaily/guildmind/conversation"
	"github.com/quailyquaily/guildmind/internal/sysinfo"
	"github.com/quailyquaily/guildmind/persona"
)

const DefaultPrefix = "$"

// Invocation is one command message. Text is the full message including the
// prefix.
type Invocation struct {
	TenantID       string
	ChannelID      string
	UserID         string
	ChannelMention string
	Text           string
}

type command struct {
	name    string
	args    string
	summary string
	run     func(s *Surface, ctx context.Context, inv Invocation, arg string) string
}

type Options struct {
	Saver      *conversation.Saver
	Personas   *persona.Holder
	Prefix     string
	Keywords   func() []string
	Uptime     func(ctx context.Context) (string, error)
	PersonaDir string
	Logger     *slog.Logger
}

type Surface struct {
	saver      *conversation.Saver
	personas   *persona.Holder
	prefix     string
	keywords   func() []string
	uptime     func(ctx context.Context) (string, error)
	personaDir string
	logger     *slog.Logger

	table map[string]command
	order []string
}

func New(opts Options) *Surface {
	s := &Surface{
		saver:      opts.Saver,
		personas:   opts.Personas,
		prefix:     opts.Prefix,
		keywords:   opts.Keywords,
		uptime:     opts.Uptime,
		personaDir: strings.TrimSpace(opts.PersonaDir),
		logger:     opts.Logger,
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.uptime == nil {
		s.uptime = sysinfo.Uptime
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.personaDir == "" && s.personas != nil {
		s.personaDir = s.personas.Dir()
	}
	if s.personas == nil {
		s.personas = persona.NewStaticHolder(nil)
	}
	s.table = map[string]command{}
	for _, c := range commandTable() {
		s.table[c.name] = c
		s.order = append(s.order, c.name)
	}
	return s
}

func commandTable() []command {
	return []command{
		{name: "help", summary: "Shows this message.", run: (*Surface).help},
		{name: "setchannel", summary: "Sets the current channel for continuous conversation.", run: (*Surface).setChannel},
		{name: "unsetchannel", summary: "Unsets the current channel from continuous conversation.", run: (*Surface).unsetChannel},
		{name: "ignore", summary: "Disables keyword-triggered replies in this channel.", run: (*Surface).ignore},
		{name: "unignore", summary: "Enables keyword-triggered replies in this channel.", run: (*Surface).unignore},
		{name: "setcontext", args: "<context_name>", summary: "Sets a specific AI context (persona/topic) for this channel.", run: (*Surface).setContext},
		{name: "unsetcontext", summary: "Removes the custom AI context for this channel, reverting to the default.", run: (*Surface).unsetContext},
		{name: "contexts", summary: "Lists the available AI contexts.", run: (*Surface).contexts},
		{name: "reloadcontexts", summary: "Reloads AI contexts from disk.", run: (*Surface).reloadContexts},
		{name: "time", summary: "Shows the system uptime.", run: (*Surface).showUptime},
	}
}

func (s *Surface) Prefix() string { return s.prefix }

// IsCommand reports whether text starts with the command prefix.
func (s *Surface) IsCommand(text string) bool {
	return strings.HasPrefix(text, s.prefix)
}

// Names lists the commands in help order.
func (s *Surface) Names() []string {
	return append([]string(nil), s.order...)
}

// Execute dispatches inv and returns the reply text. Empty means no reply.
func (s *Surface) Execute(ctx context.Context, inv Invocation) string {
	if !s.IsCommand(inv.Text) {
		return ""
	}
	name, arg := splitCommand(strings.TrimPrefix(inv.Text, s.prefix))
	name = strings.ToLower(name)
	if name == "" {
		return ""
	}
	cmd, ok := s.table[name]
	if !ok {
		// "$5 for a bot?" is chat, not a mistyped command.
		if !isCommandWord(name) {
			return ""
		}
		return "Unknown command `" + s.prefix + name + "`. Use `" + s.prefix + "help` to list commands."
	}
	s.logger.Debug("command_dispatch", "command", name, "tenant_id", inv.TenantID, "channel_id", inv.ChannelID, "user_id", inv.UserID)
	return cmd.run(s, ctx, inv, arg)
}

func isCommandWord(name string) bool {
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return name != ""
}

func (s *Surface) tenant(inv Invocation) *conversation.Tenant {
	return s.saver.Store().GetOrCreateTenant(inv.TenantID)
}

func (s *Surface) persist(ctx context.Context, name string) {
	_ = s.saver.Save(ctx, "command_"+name)
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "None"
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
