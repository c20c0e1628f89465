package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quailyquaily/guildmind/commands"
	"github.com/quailyquaily/guildmind/conversation"
	"github.com/quailyquaily/guildmind/internal/channelruntime/discord"
	"github.com/quailyquaily/guildmind/internal/logutil"
	"github.com/quailyquaily/guildmind/internal/statepaths"
	"github.com/quailyquaily/guildmind/internal/sysinfo"
	"github.com/quailyquaily/guildmind/llm"
	"github.com/quailyquaily/guildmind/persona"
	"github.com/quailyquaily/guildmind/providers/disabled"
	"github.com/quailyquaily/guildmind/providers/gemini"
	"github.com/quailyquaily/guildmind/ratelimit"
	"github.com/quailyquaily/guildmind/router"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and answer messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, logger)
		},
	}

	cmd.Flags().String("discord-token", "", "Discord bot token.")
	cmd.Flags().Int("max-concurrency", 4, "Max messages processed concurrently.")
	cmd.Flags().String("model", "", "Completion model name.")
	cmd.Flags().String("ratelimit-backend", "memory", "Rate limiter backend: memory|redis.")
	cmd.Flags().Bool("watch-personas", true, "Reload personas when files in the persona directory change.")

	_ = viper.BindPFlag("discord.token", cmd.Flags().Lookup("discord-token"))
	_ = viper.BindPFlag("discord.max_concurrency", cmd.Flags().Lookup("max-concurrency"))
	_ = viper.BindPFlag("llm.model", cmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("ratelimit.backend", cmd.Flags().Lookup("ratelimit-backend"))
	_ = viper.BindPFlag("persona.watch", cmd.Flags().Lookup("watch-personas"))

	return cmd
}

func runServe(ctx context.Context, logger *slog.Logger) error {
	token := strings.TrimSpace(viper.GetString("discord.token"))
	if token == "" {
		return fmt.Errorf("missing discord.token (set via --discord-token or GUILDMIND_DISCORD_TOKEN)")
	}

	store, err := conversation.Open(conversation.Options{
		Path:   statepaths.StateFile(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	if st := store.LoadStatus(); st.Recovered {
		logger.Warn("serve_state_recovered", "path", store.Path(), "quarantined_to", st.QuarantinedTo)
	}
	saver := conversation.NewSaver(ctx, store, logger, viper.GetDuration("state.retry_delay"))

	holder := persona.NewHolder(statepaths.PersonaDir())
	if catalog, err := holder.Reload(); err != nil {
		logger.Warn("serve_persona_load_error", "dir", holder.Dir(), "error", err.Error())
	} else {
		logger.Info("serve_personas_loaded", "dir", holder.Dir(), "count", catalog.Len())
	}

	limiter, sweeper, closeLimiter, err := limiterFromViper(logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	client := clientFromViper(ctx, logger)

	var rt *discord.Runtime
	var rtr *router.Router
	surface := commands.New(commands.Options{
		Saver:      saver,
		Personas:   holder,
		Prefix:     viper.GetString("router.command_prefix"),
		Keywords:   func() []string { return rtr.Keywords() },
		Uptime:     sysinfo.Uptime,
		PersonaDir: holder.Dir(),
		Logger:     logger,
	})

	rt, err = discord.New(discord.RunOptions{
		Token:          token,
		MaxConcurrency: viper.GetInt("discord.max_concurrency"),
		DrainTimeout:   viper.GetDuration("discord.drain_timeout"),
		Logger:         logger,
		OnReady:        func(username string) { rtr.AddKeyword(username) },
	})
	if err != nil {
		return err
	}

	rtr, err = router.New(router.Options{
		Saver:          saver,
		Personas:       holder,
		Commands:       surface,
		Limiter:        limiter,
		Client:         client,
		Replier:        rt,
		Logger:         logger,
		Model:          viper.GetString("llm.model"),
		Keywords:       keywordsFromViper(),
		DefaultPrompt:  viper.GetString("persona.default_prompt"),
		DefaultPersona: viper.GetString("persona.default_name"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx, rtr) })
	if viper.GetBool("persona.watch") {
		w := persona.NewWatcher(holder, logger, persona.DefaultDebounce)
		g.Go(func() error { return w.Run(gctx) })
	}
	if sweeper != nil {
		interval := viper.GetDuration("ratelimit.sweep_interval")
		g.Go(func() error { return sweeper.RunSweeper(gctx, interval) })
	}

	runErr := g.Wait()
	saver.Wait()
	if err := saver.Save(context.Background(), "shutdown"); err != nil {
		logger.Error("serve_final_persist_error", "error", err.Error())
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	logger.Info("serve_stopped")
	return nil
}

// limiterFromViper returns the configured limiter. The memory backend is also
// returned as a sweeper so idle windows can be reclaimed.
func limiterFromViper(logger *slog.Logger) (ratelimit.Limiter, *ratelimit.Memory, func(), error) {
	cfg := rateLimitFromViper()
	switch backend := strings.ToLower(strings.TrimSpace(viper.GetString("ratelimit.backend"))); backend {
	case "", "memory":
		m := ratelimit.NewMemory(cfg)
		logger.Info("serve_ratelimit", "backend", "memory", "max_prompts", m.Config().MaxPrompts, "window", m.Config().Window.String())
		return m, m, func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("ratelimit.redis.addr"),
			Password: viper.GetString("ratelimit.redis.password"),
			DB:       viper.GetInt("ratelimit.redis.db"),
		})
		r := ratelimit.NewRedis(client, cfg, ratelimit.RedisOptions{
			Prefix: viper.GetString("ratelimit.redis.prefix"),
			Logger: logger,
		})
		logger.Info("serve_ratelimit", "backend", "redis", "addr", client.Options().Addr)
		return r, nil, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown ratelimit.backend: %s", backend)
	}
}

// clientFromViper never fails: without a usable backend the bot keeps
// answering with the disabled notice.
func clientFromViper(ctx context.Context, logger *slog.Logger) llm.Client {
	provider := strings.ToLower(strings.TrimSpace(viper.GetString("llm.provider")))
	if provider != "gemini" {
		logger.Warn("serve_llm_disabled", "reason", "unsupported provider", "provider", provider)
		return disabled.New()
	}
	key := strings.TrimSpace(viper.GetString("llm.api_key"))
	if key == "" {
		logger.Warn("serve_llm_disabled", "reason", "missing llm.api_key")
		return disabled.New()
	}
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:         key,
		Model:          viper.GetString("llm.model"),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	})
	if err != nil {
		logger.Error("serve_llm_disabled", "reason", "client init failed", "error", err.Error())
		return disabled.New()
	}
	logger.Info("serve_llm_ready", "provider", provider, "model", client.Model())
	return client
}
