package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/guildmind/commands"
	"github.com/quailyquaily/guildmind/conversation"
	"github.com/quailyquaily/guildmind/llm"
	"github.com/quailyquaily/guildmind/persona"
	"github.com/quailyquaily/guildmind/ratelimit"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu       sync.Mutex
	requests []llm.Request
	errFor   map[string]error
	reply    string
}

func (f *fakeClient) Chat(_ context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	last := req.Messages[len(req.Messages)-1].Content
	for marker, err := range f.errFor {
		if strings.Contains(last, marker) {
			return llm.Result{}, err
		}
	}
	text := f.reply
	if text == "" {
		text = "reply to " + last
	}
	return llm.Result{Text: text}, nil
}

func (f *fakeClient) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type sent struct {
	msg  Message
	text string
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeReplier) Reply(_ context.Context, msg Message, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{msg: msg, text: text})
	return nil
}

func (f *fakeReplier) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type harness struct {
	router  *Router
	store   *conversation.Store
	client  *fakeClient
	replier *fakeReplier
}

type harnessOptions struct {
	limiter        ratelimit.Limiter
	client         llm.Client
	defaultPersona string
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := conversation.NewMemory()
	saver := conversation.NewSaver(context.Background(), store, logger, 0)
	holder := persona.NewStaticHolder(persona.New(
		persona.Persona{Name: "pirate", Prompt: "You are a pirate."},
		persona.Persona{Name: "helper", Prompt: "You are a helper."},
	))
	fc := &fakeClient{errFor: map[string]error{}}
	var client llm.Client = fc
	if ho.client != nil {
		client = ho.client
	}
	limiter := ho.limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.Config{MaxPrompts: 0})
	}
	rep := &fakeReplier{}
	var r *Router
	surface := commands.New(commands.Options{
		Saver:    saver,
		Personas: holder,
		Keywords: func() []string { return r.Keywords() },
		Uptime:   func(context.Context) (string, error) { return "up 1 minute", nil },
		Logger:   logger,
	})
	r, err := New(Options{
		Saver:          saver,
		Personas:       holder,
		Commands:       surface,
		Limiter:        limiter,
		Client:         client,
		Replier:        rep,
		Logger:         logger,
		DefaultPersona: ho.defaultPersona,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{router: r, store: store, client: fc, replier: rep}
}

func msg(tenant, channel, user, text string) Message {
	return Message{
		TenantID:       tenant,
		ChannelID:      channel,
		UserID:         user,
		UserMention:    "<@" + user + ">",
		ChannelMention: "<#" + channel + ">",
		Text:           text,
	}
}

func TestSelfMessagesAreDropped(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := msg("g1", "c1", "bot", "hey bot")
	m.IsSelf = true
	if got := h.router.Handle(context.Background(), m); got != OutcomeSelf {
		t.Fatalf("Handle() = %s, want self", got)
	}
	if len(h.replier.texts()) != 0 || h.client.count() != 0 {
		t.Fatalf("self message produced side effects")
	}
}

func TestDirectMessagesGetNotice(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := msg("", "dm1", "u1", "hello ai")
	m.IsDirect = true
	if got := h.router.Handle(context.Background(), m); got != OutcomeDirect {
		t.Fatalf("Handle() = %s, want direct", got)
	}
	if texts := h.replier.texts(); len(texts) != 1 || texts[0] != NoticeDirect {
		t.Fatalf("replies = %q", texts)
	}
	if h.client.count() != 0 {
		t.Fatalf("direct message reached the completion client")
	}
}

func TestCommandIsNotConversational(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.store.GetOrCreateTenant("g1").SetContinuous("c1", true)

	// Contains a keyword and is in a continuous channel, but is a command.
	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "$ignore ai")); got != OutcomeCommand {
		t.Fatalf("Handle() = %s, want command", got)
	}
	if h.client.count() != 0 {
		t.Fatalf("command reached the completion client")
	}
	if texts := h.replier.texts(); len(texts) != 1 || !strings.Contains(texts[0], "now ignored") {
		t.Fatalf("replies = %q", texts)
	}
}

func TestKeywordBeatsContinuous(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	tenant := h.store.GetOrCreateTenant("g1")
	tenant.SetContinuous("c1", true)

	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "Hey AI, what's up?")); got != OutcomeKeyword {
		t.Fatalf("Handle() = %s, want keyword", got)
	}
	if h.client.count() != 1 {
		t.Fatalf("completion calls = %d, want exactly 1", h.client.count())
	}
	if n := len(tenant.User("u1").RollingHistory()); n != 2 {
		t.Fatalf("rolling history = %d turns, want 2", n)
	}
	if n := len(tenant.MainHistory()); n != 0 {
		t.Fatalf("main history = %d turns, want 0", n)
	}
	if texts := h.replier.texts(); len(texts) != 1 {
		t.Fatalf("replies = %q, want exactly one", texts)
	}
}

func TestContinuousUsesMainHistory(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	tenant := h.store.GetOrCreateTenant("g1")
	tenant.SetContinuous("c1", true)
	tenant.User("u1").SetProfileSummary("likes boats")

	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "good morning")); got != OutcomeContinuous {
		t.Fatalf("Handle() = %s, want continuous", got)
	}
	if got := h.router.Handle(ctx, msg("g1", "c1", "u2", "and to you")); got != OutcomeContinuous {
		t.Fatalf("Handle() = %s, want continuous", got)
	}
	main := tenant.MainHistory()
	if len(main) != 4 || main[0].Text != "good morning" || main[3].Text != "reply to and to you" {
		t.Fatalf("main history = %+v", main)
	}
	req := h.client.last()
	if len(req.Messages) != 3 || req.Messages[0].Content != "good morning" {
		t.Fatalf("continuous request did not carry main history: %+v", req.Messages)
	}
	if strings.Contains(req.System, "User profile context") {
		t.Fatalf("continuous path injected profile summary: %q", req.System)
	}
	if n := len(tenant.User("u1").RollingHistory()); n != 0 {
		t.Fatalf("rolling history = %d, want 0", n)
	}
}

func TestIgnoredChannelFallsThroughToContinuous(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	tenant := h.store.GetOrCreateTenant("g1")
	tenant.SetKeywordIgnored("c1", true)

	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "hi bot")); got != OutcomeIgnored {
		t.Fatalf("Handle() in ignored channel = %s, want ignored", got)
	}
	tenant.SetContinuous("c1", true)
	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "hi bot")); got != OutcomeContinuous {
		t.Fatalf("Handle() in ignored continuous channel = %s, want continuous", got)
	}
}

func TestNoMatchIsIgnored(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	if got := h.router.Handle(context.Background(), msg("g1", "c1", "u1", "just chatting")); got != OutcomeIgnored {
		t.Fatalf("Handle() = %s, want ignored", got)
	}
	if len(h.replier.texts()) != 0 || h.client.count() != 0 {
		t.Fatalf("unmatched message produced side effects")
	}
}

func TestPersonaPrecedence(t *testing.T) {
	h := newHarness(t, harnessOptions{defaultPersona: "helper"})
	ctx := context.Background()

	h.router.Handle(ctx, msg("g1", "c1", "u1", "$setcontext pirate"))
	h.router.Handle(ctx, msg("g1", "c1", "u1", "hello ai"))
	if got := h.client.last().System; got != "You are a pirate." {
		t.Fatalf("System with channel persona = %q", got)
	}

	h.router.Handle(ctx, msg("g1", "c1", "u1", "$unsetcontext"))
	h.router.Handle(ctx, msg("g1", "c1", "u1", "hello ai"))
	if got := h.client.last().System; got != "You are a helper." {
		t.Fatalf("System after unsetcontext = %q", got)
	}
}

func TestPersonaFallbacks(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	h.router.Handle(ctx, msg("g1", "c1", "u1", "hello ai"))
	if got := h.client.last().System; got != DefaultPrompt {
		t.Fatalf("System without personas = %q", got)
	}

	// A reference to a persona no longer in the catalog falls back silently.
	h.store.GetOrCreateTenant("g1").SetChannelPersona("c1", "deleted")
	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "hello ai")); got != OutcomeKeyword {
		t.Fatalf("Handle() = %s, want keyword", got)
	}
	if got := h.client.last().System; got != DefaultPrompt {
		t.Fatalf("System with dangling persona = %q", got)
	}
}

func TestProfileSummaryAppendedOnKeywordPath(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.store.GetOrCreateTenant("g1").User("u1").SetProfileSummary("prefers short answers")
	h.router.Handle(context.Background(), msg("g1", "c1", "u1", "ai please"))
	want := DefaultPrompt + "\n\nUser profile context: prefers short answers"
	if got := h.client.last().System; got != want {
		t.Fatalf("System = %q, want %q", got, want)
	}
}

func TestRollingHistoryIsCarriedForward(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.router.Handle(ctx, msg("g1", "c1", "u1", "ai one"))
	h.router.Handle(ctx, msg("g1", "c1", "u1", "ai two"))

	req := h.client.last()
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleUser || req.Messages[1].Role != llm.RoleModel || req.Messages[2].Content != "ai two" {
		t.Fatalf("messages = %+v", req.Messages)
	}
}

func TestRateLimitNotices(t *testing.T) {
	h := newHarness(t, harnessOptions{limiter: ratelimit.NewMemory(ratelimit.Config{MaxPrompts: 1, Window: time.Hour})})
	ctx := context.Background()
	tenant := h.store.GetOrCreateTenant("g1")
	tenant.SetContinuous("c2", true)

	h.router.Handle(ctx, msg("g1", "c1", "u1", "ai first"))
	if got := h.router.Handle(ctx, msg("g1", "c1", "u1", "ai second")); got != OutcomeRateLimited {
		t.Fatalf("Handle() = %s, want rate_limited", got)
	}
	if got := h.router.Handle(ctx, msg("g1", "c2", "u1", "third")); got != OutcomeRateLimited {
		t.Fatalf("Handle() continuous = %s, want rate_limited", got)
	}
	texts := h.replier.texts()
	if len(texts) != 3 {
		t.Fatalf("replies = %q", texts)
	}
	if texts[1] != "<@u1>, you're asking for AI responses a bit too quickly! Please wait a moment." {
		t.Fatalf("keyword notice = %q", texts[1])
	}
	if texts[2] != "<@u1>, you're sending messages too quickly in this AI channel! Please wait a moment." {
		t.Fatalf("continuous notice = %q", texts[2])
	}
	if h.client.count() != 1 {
		t.Fatalf("completion calls = %d, want 1", h.client.count())
	}
	if n := len(tenant.User("u1").RollingHistory()); n != 2 {
		t.Fatalf("rolling history = %d, want 2", n)
	}
}

func TestFailureNotices(t *testing.T) {
	cases := []struct {
		name string
		err  error
		mode Mode
		want string
	}{
		{name: "keyword", err: errors.New("boom"), mode: ModeKeyword, want: "Sorry, I couldn't process that keyword request right now."},
		{name: "continuous", err: errors.New("boom"), mode: ModeContinuous, want: "Sorry, I couldn't continue our conversation right now."},
		{name: "disabled", err: llm.ErrDisabled, mode: ModeKeyword, want: NoticeDisabled},
		{name: "blocked", err: &llm.BlockedError{Reason: "SAFETY"}, mode: ModeKeyword, want: "My safety filters prevented a response: SAFETY"},
		{name: "empty", err: llm.ErrEmptyResponse, mode: ModeContinuous, want: NoticeEmpty},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})
			h.client.errFor["oops"] = tc.err
			tenant := h.store.GetOrCreateTenant("g1")
			text := "ai oops"
			if tc.mode == ModeContinuous {
				tenant.SetContinuous("c1", true)
				text = "oops please"
			}
			if got := h.router.Handle(context.Background(), msg("g1", "c1", "u1", text)); got != OutcomeFailed {
				t.Fatalf("Handle() = %s, want failed", got)
			}
			if texts := h.replier.texts(); len(texts) != 1 || texts[0] != tc.want {
				t.Fatalf("replies = %q, want %q", texts, tc.want)
			}
			if len(tenant.MainHistory()) != 0 || len(tenant.User("u1").RollingHistory()) != 0 {
				t.Fatalf("failed turn was recorded")
			}
		})
	}
}

func TestFailureIsolationAcrossTenants(t *testing.T) {
	h := newHarness(t, harnessOptions{limiter: ratelimit.NewMemory(ratelimit.Config{MaxPrompts: 2, Window: time.Hour})})
	h.client.errFor["oops"] = errors.New("backend down")
	ctx := context.Background()

	h.router.Handle(ctx, msg("gB", "c1", "u1", "ai hello"))
	before := h.store.GetOrCreateTenant("gB").User("u1").RollingHistory()

	if got := h.router.Handle(ctx, msg("gA", "c1", "u1", "ai oops")); got != OutcomeFailed {
		t.Fatalf("Handle(gA) = %s, want failed", got)
	}

	after := h.store.GetOrCreateTenant("gB").User("u1").RollingHistory()
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("tenant B history changed: %+v -> %+v", before, after)
	}
	// gB/u1 used one slot; the gA failure must not have consumed gB's quota.
	if got := h.router.Handle(ctx, msg("gB", "c1", "u1", "ai again")); got != OutcomeKeyword {
		t.Fatalf("Handle(gB) after gA failure = %s, want keyword", got)
	}
}

func TestReplyFailureDoesNotRecordTurn(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.replier.err = errors.New("send failed")
	if got := h.router.Handle(context.Background(), msg("g1", "c1", "u1", "ai hi")); got != OutcomeFailed {
		t.Fatalf("Handle() = %s, want failed", got)
	}
	if n := len(h.store.GetOrCreateTenant("g1").User("u1").RollingHistory()); n != 0 {
		t.Fatalf("rolling history = %d, want 0", n)
	}
}

func TestAddKeyword(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.router.AddKeyword("  GuildMind ")
	h.router.AddKeyword("ai")
	got := h.router.Keywords()
	if len(got) != 4 || got[3] != "guildmind" {
		t.Fatalf("Keywords() = %v", got)
	}
	if out := h.router.Handle(context.Background(), msg("g1", "c1", "u1", "hey GuildMind")); out != OutcomeKeyword {
		t.Fatalf("Handle() = %s, want keyword", out)
	}
}

func TestConcurrentSameUserAdmission(t *testing.T) {
	h := newHarness(t, harnessOptions{limiter: ratelimit.NewMemory(ratelimit.Config{MaxPrompts: 3, Window: time.Hour})})
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- h.router.Handle(ctx, msg("g1", "c1", "u1", "ai go"))
		}()
	}
	wg.Wait()
	close(outcomes)

	admitted := 0
	for o := range outcomes {
		if o == OutcomeKeyword {
			admitted++
		}
	}
	if admitted != 3 {
		t.Fatalf("admitted = %d, want 3", admitted)
	}
	if n := len(h.store.GetOrCreateTenant("g1").User("u1").RollingHistory()); n != 6 {
		t.Fatalf("rolling history = %d, want 6", n)
	}
}
