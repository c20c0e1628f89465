package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/guildmind/internal/sysinfo"
)

func (s *Surface) help(_ context.Context, _ Invocation, _ string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Available commands (prefix: `%s`):**\n", s.prefix)
	for _, name := range s.order {
		c := s.table[name]
		usage := s.prefix + c.name
		if c.args != "" {
			usage += " " + c.args
		}
		fmt.Fprintf(&b, "- `%s`: %s", usage, c.summary)
		if c.name == "setcontext" && s.personaDir != "" {
			fmt.Fprintf(&b, " Contexts are loaded from the `%s` directory.", s.personaDir)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n*Note: If a channel is set for continuous conversation, I will respond to every message.\n")
	b.WriteString("If not, I will only respond if you mention a keyword")
	if kws := s.keywordList(); len(kws) > 0 {
		quoted := make([]string, 0, len(kws))
		for _, kw := range kws {
			quoted = append(quoted, "'"+kw+"'")
		}
		fmt.Fprintf(&b, " (like %s)", strings.Join(quoted, ", "))
	}
	b.WriteString("\nand the channel is not ignored for keywords.*")
	return b.String()
}

func (s *Surface) keywordList() []string {
	if s.keywords == nil {
		return nil
	}
	return s.keywords()
}

func (s *Surface) setChannel(ctx context.Context, inv Invocation, _ string) string {
	if !s.tenant(inv).SetContinuous(inv.ChannelID, true) {
		return fmt.Sprintf("This channel (%s) is already set for continuous conversation.", inv.ChannelMention)
	}
	s.persist(ctx, "setchannel")
	s.logger.Info("command_setchannel", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID)
	return fmt.Sprintf("This channel (%s) has been set for continuous conversation.", inv.ChannelMention)
}

func (s *Surface) unsetChannel(ctx context.Context, inv Invocation, _ string) string {
	if !s.tenant(inv).SetContinuous(inv.ChannelID, false) {
		return fmt.Sprintf("This channel (%s) was not set for continuous conversation.", inv.ChannelMention)
	}
	s.persist(ctx, "unsetchannel")
	s.logger.Info("command_unsetchannel", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID)
	return fmt.Sprintf("This channel (%s) has been unset from continuous conversation.", inv.ChannelMention)
}

func (s *Surface) ignore(ctx context.Context, inv Invocation, _ string) string {
	if !s.tenant(inv).SetKeywordIgnored(inv.ChannelID, true) {
		return fmt.Sprintf("Keyword replies are already ignored in this channel (%s).", inv.ChannelMention)
	}
	s.persist(ctx, "ignore")
	s.logger.Info("command_ignore", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID)
	return fmt.Sprintf("Keyword replies are now ignored in this channel (%s).", inv.ChannelMention)
}

func (s *Surface) unignore(ctx context.Context, inv Invocation, _ string) string {
	if !s.tenant(inv).SetKeywordIgnored(inv.ChannelID, false) {
		return fmt.Sprintf("Keyword replies were not ignored in this channel (%s).", inv.ChannelMention)
	}
	s.persist(ctx, "unignore")
	s.logger.Info("command_unignore", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID)
	return fmt.Sprintf("Keyword replies are now enabled in this channel (%s).", inv.ChannelMention)
}

func (s *Surface) setContext(ctx context.Context, inv Invocation, arg string) string {
	name, _ := splitCommand(arg)
	if name == "" {
		return fmt.Sprintf("Usage: `%ssetcontext <context_name>`", s.prefix)
	}
	catalog := s.personas.Current()
	if _, ok := catalog.Lookup(name); !ok {
		s.logger.Warn("command_setcontext_unknown", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID, "name", name)
		return fmt.Sprintf("Context `%s` not found. Available contexts: %s", name, joinNames(catalog.Names()))
	}
	lower := strings.ToLower(name)
	if !s.tenant(inv).SetChannelPersona(inv.ChannelID, lower) {
		return fmt.Sprintf("AI context for this channel (%s) is already set to: `%s`.", inv.ChannelMention, lower)
	}
	s.persist(ctx, "setcontext")
	s.logger.Info("command_setcontext", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID, "name", lower)
	return fmt.Sprintf("AI context for this channel (%s) set to: `%s`.", inv.ChannelMention, lower)
}

func (s *Surface) unsetContext(ctx context.Context, inv Invocation, _ string) string {
	if !s.tenant(inv).ClearChannelPersona(inv.ChannelID) {
		return fmt.Sprintf("This channel (%s) does not have a custom AI context set.", inv.ChannelMention)
	}
	s.persist(ctx, "unsetcontext")
	s.logger.Info("command_unsetcontext", "tenant_id", inv.TenantID, "channel_id", inv.ChannelID)
	return fmt.Sprintf("Custom AI context for this channel (%s) has been removed. Reverting to default.", inv.ChannelMention)
}

func (s *Surface) contexts(_ context.Context, inv Invocation, _ string) string {
	catalog := s.personas.Current()
	if catalog.Len() == 0 {
		return "No AI contexts are loaded."
	}
	var b strings.Builder
	b.WriteString("**Available contexts:**")
	active, hasActive := s.tenant(inv).ChannelPersona(inv.ChannelID)
	for _, p := range catalog.Personas() {
		b.WriteString("\n- `" + p.Name + "`")
		if p.Description != "" {
			b.WriteString(": " + p.Description)
		}
		if hasActive && p.Name == active {
			b.WriteString(" (active here)")
		}
	}
	return b.String()
}

func (s *Surface) reloadContexts(_ context.Context, inv Invocation, _ string) string {
	catalog, err := s.personas.Reload()
	if catalog == nil {
		s.logger.Error("command_reloadcontexts_error", "tenant_id", inv.TenantID, "error", err.Error())
		return fmt.Sprintf("Could not reload contexts: %v", err)
	}
	s.logger.Info("command_reloadcontexts", "tenant_id", inv.TenantID, "count", catalog.Len())
	reply := fmt.Sprintf("Reloaded %d contexts. Available contexts: %s", catalog.Len(), joinNames(catalog.Names()))
	if err != nil {
		s.logger.Warn("command_reloadcontexts_partial", "tenant_id", inv.TenantID, "error", err.Error())
		reply += "\nSome context files could not be read; check the logs."
	}
	return reply
}

func (s *Surface) showUptime(ctx context.Context, inv Invocation, _ string) string {
	out, err := s.uptime(ctx)
	if err == nil {
		return "System uptime: " + out
	}
	s.logger.Error("command_time_error", "user_id", inv.UserID, "error", err.Error())
	var cmdErr *sysinfo.CommandError
	switch {
	case errors.Is(err, sysinfo.ErrUptimeUnavailable):
		return "Error: `uptime` command not found on the system."
	case errors.As(err, &cmdErr):
		return "Error executing uptime command: " + cmdErr.Error()
	default:
		return fmt.Sprintf("An unexpected error occurred: %v", err)
	}
}
