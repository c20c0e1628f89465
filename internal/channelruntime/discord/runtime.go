package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	runtimeworker "github.com/quailyquaily/guildmind/internal/channelruntime/worker"
	"github.com/quailyquaily/guildmind/router"
)

const (
	defaultMaxConcurrency = 4
	defaultDrainTimeout   = 30 * time.Second
)

type RunOptions struct {
	Token          string
	MaxConcurrency int
	// DrainTimeout bounds how long shutdown waits for in-flight messages
	// before their contexts are cancelled.
	DrainTimeout time.Duration
	Logger       *slog.Logger
	// OnReady receives the bot's username once the gateway session is up.
	OnReady func(username string)
}

// Handler is the message-routing entry point; *router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg router.Message) router.Outcome
}

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Runtime owns the gateway session. It is also the router's Replier.
type Runtime struct {
	opts    RunOptions
	logger  *slog.Logger
	session *discordgo.Session
	sender  messageSender

	mu        sync.RWMutex
	selfID    string
	selfName  string
	connected bool
}

func New(opts RunOptions) (*Runtime, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("missing discord.token")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	return &Runtime{opts: opts, logger: logger, session: session, sender: session}, nil
}

// Run connects, dispatches every created message to h and blocks until ctx
// is done. On shutdown it stops taking events, lets in-flight messages
// finish (up to DrainTimeout) and only then closes the session, so their
// replies can still be sent.
func (rt *Runtime) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("discord runtime: nil handler")
	}
	pool, cancelHandlers := rt.startPool(ctx, h)
	defer cancelHandlers()

	removeReady := rt.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		rt.onReady(r)
	})
	defer removeReady()
	removeCreate := rt.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := rt.toMessage(m)
		if !ok {
			return
		}
		if err := pool.Enqueue(ctx, msg); err != nil {
			rt.logger.Warn("discord_enqueue_error", "channel_id", msg.ChannelID, "error", err.Error())
		}
	})

	if err := rt.session.Open(); err != nil {
		removeCreate()
		pool.Stop()
		pool.Wait()
		return fmt.Errorf("discord open: %w", err)
	}
	rt.logger.Info("discord_connected", "max_concurrency", rt.opts.MaxConcurrency)

	<-ctx.Done()
	removeCreate()
	rt.drain(pool, cancelHandlers)
	if err := rt.session.Close(); err != nil {
		rt.logger.Warn("discord_close_error", "error", err.Error())
	}
	rt.logger.Info("discord_stopped")
	return nil
}

// startPool builds the message pool. Handlers run under a context that
// keeps ctx's values but not its cancellation; the returned func cancels it.
func (rt *Runtime) startPool(ctx context.Context, h Handler) (*runtimeworker.Pool[router.Message], context.CancelFunc) {
	handleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pool := runtimeworker.Start(runtimeworker.StartOptions[router.Message]{
		Ctx:         handleCtx,
		Concurrency: rt.opts.MaxConcurrency,
		Handle: func(ctx context.Context, msg router.Message) {
			start := time.Now()
			outcome := h.Handle(ctx, msg)
			rt.logger.Debug("discord_message_handled",
				"guild_id", msg.TenantID,
				"channel_id", msg.ChannelID,
				"outcome", string(outcome),
				"duration", time.Since(start).String(),
			)
		},
	})
	return pool, cancel
}

// drain stops the pool and waits for it. Past DrainTimeout the handler
// contexts are cancelled and drain waits for handlers to return.
func (rt *Runtime) drain(pool *runtimeworker.Pool[router.Message], cancelHandlers context.CancelFunc) {
	pool.Stop()
	drained := make(chan struct{})
	go func() {
		pool.Wait()
		close(drained)
	}()
	timer := time.NewTimer(rt.opts.DrainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		rt.logger.Warn("discord_drain_timeout", "timeout", rt.opts.DrainTimeout.String())
		cancelHandlers()
		<-drained
	}
}

func (rt *Runtime) onReady(r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	rt.mu.Lock()
	rt.selfID = r.User.ID
	rt.selfName = r.User.Username
	rt.connected = true
	rt.mu.Unlock()
	rt.logger.Info("discord_ready", "bot_id", r.User.ID, "bot_name", r.User.Username, "guilds", len(r.Guilds))
	if rt.opts.OnReady != nil {
		rt.opts.OnReady(r.User.Username)
	}
}

func (rt *Runtime) toMessage(m *discordgo.MessageCreate) (router.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return router.Message{}, false
	}
	rt.mu.RLock()
	selfID := rt.selfID
	rt.mu.RUnlock()
	return router.Message{
		TenantID:       m.GuildID,
		ChannelID:      m.ChannelID,
		UserID:         m.Author.ID,
		UserMention:    m.Author.Mention(),
		ChannelMention: "<#" + m.ChannelID + ">",
		Text:           m.Content,
		IsSelf:         selfID != "" && m.Author.ID == selfID,
		IsDirect:       m.GuildID == "",
	}, true
}

// Reply sends text to msg's channel, split to fit the message size limit.
func (rt *Runtime) Reply(_ context.Context, msg router.Message, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if _, err := rt.sender.ChannelMessageSend(msg.ChannelID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}
