package conversation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/guildmind/internal/retryutil"
)

const defaultRetryDelay = 5 * time.Second

// Saver persists the store after a logical change. A failed write is logged
// and at most one background retry is outstanding at a time; any later
// successful write also carries the pending changes.
type Saver struct {
	store      *Store
	logger     *slog.Logger
	retryDelay time.Duration

	base    context.Context
	pending atomic.Bool
	mu      sync.Mutex
	retry   <-chan struct{}
}

func NewSaver(base context.Context, store *Store, logger *slog.Logger, retryDelay time.Duration) *Saver {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Saver{store: store, logger: logger, retryDelay: retryDelay, base: base}
}

func (s *Saver) Store() *Store { return s.store }

// Save returns the persist error after logging it.
func (s *Saver) Save(ctx context.Context, reason string) error {
	err := s.store.Persist(ctx)
	if err == nil {
		return nil
	}
	s.logger.Error("conversation_persist_error", "reason", reason, "path", s.store.Path(), "error", err.Error())
	if s.pending.CompareAndSwap(false, true) {
		done := retryutil.AsyncRetry(s.base, s.logger, "conversation_persist", s.retryDelay, 0, s.store.Persist)
		s.mu.Lock()
		s.retry = done
		s.mu.Unlock()
		go func() {
			<-done
			s.pending.Store(false)
		}()
	}
	return err
}

// Wait blocks until the outstanding retry, if any, has finished.
func (s *Saver) Wait() {
	s.mu.Lock()
	done := s.retry
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
