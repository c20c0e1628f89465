package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/guildmind/internal/fsstore"
)

const shardCount = 32

type Options struct {
	// Path of the JSON document. Empty keeps the store in memory only.
	Path       string
	Logger     *slog.Logger
	RollingCap int
	MainCap    int
	// LockTimeout bounds how long Persist waits for the cross-process lock.
	LockTimeout time.Duration
	Now         func() time.Time
}

// LoadStatus describes what Open found on disk.
type LoadStatus struct {
	Existed bool
	// Recovered is set when the document was malformed and the store
	// started empty. QuarantinedTo names where the bad file was moved.
	Recovered     bool
	QuarantinedTo string
	DecodeError   error
}

type tenantShard struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// Store is the in-memory source of truth for all tenants. Callers mutate
// through Tenant and UserContext handles and call Persist afterwards.
type Store struct {
	path        string
	logger      *slog.Logger
	rollingCap  int
	mainCap     int
	lockTimeout time.Duration
	now         func() time.Time

	shards [shardCount]tenantShard

	version atomic.Uint64
	writeMu sync.Mutex
	saved   uint64

	status LoadStatus
}

// NewMemory returns an empty store whose Persist is a no-op.
func NewMemory() *Store {
	return newStore(Options{})
}

// Open loads the document at opts.Path. A missing file yields an empty
// store. A malformed file is quarantined, logged, and the store starts
// empty; only unreadable files return an error.
func Open(opts Options) (*Store, error) {
	s := newStore(opts)
	if s.path == "" {
		return s, nil
	}

	var doc Document
	exists, err := fsstore.ReadJSON(s.path, &doc)
	switch {
	case errors.Is(err, fsstore.ErrDecodeFailed):
		s.status = LoadStatus{Existed: true, Recovered: true, DecodeError: err}
		moved, qErr := fsstore.Quarantine(s.path, s.now())
		if qErr != nil {
			s.logger.Error("conversation_quarantine_error", "path", s.path, "error", qErr.Error())
		}
		s.status.QuarantinedTo = moved
		s.logger.Error("conversation_state_corrupt", "path", s.path, "quarantined_to", moved, "error", err.Error())
		return s, nil
	case err != nil:
		return nil, err
	case !exists:
		s.logger.Warn("conversation_state_missing", "path", s.path)
		return s, nil
	}

	s.status.Existed = true
	for tenantID, rec := range doc {
		tenantID = NormalizeID(tenantID)
		if tenantID == "" {
			continue
		}
		s.installTenant(tenantID, rec.materialize(s.rollingCap, s.mainCap))
	}
	s.saved = s.version.Load()
	s.logger.Info("conversation_state_loaded", "path", s.path, "tenants", len(doc))
	return s, nil
}

func newStore(opts Options) *Store {
	s := &Store{
		path:        strings.TrimSpace(opts.Path),
		logger:      opts.Logger,
		rollingCap:  normalizeCapacity(opts.RollingCap),
		mainCap:     normalizeCapacity(opts.MainCap),
		lockTimeout: opts.LockTimeout,
		now:         opts.Now,
	}
	if opts.RollingCap <= 0 {
		s.rollingCap = RollingHistoryCap
	}
	if opts.MainCap <= 0 {
		s.mainCap = MainHistoryCap
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for i := range s.shards {
		s.shards[i].tenants = map[string]*Tenant{}
	}
	return s
}

func (s *Store) installTenant(id string, rec TenantRecord) {
	t := newTenant(s, id)
	t.continuous = append(t.continuous, rec.SetChannels...)
	t.ignored = append(t.ignored, rec.IgnoredChannels...)
	t.main = rec.MainChatHistory
	t.personas = rec.ChannelActiveContexts
	for userID, u := range rec.UserSpecificContext {
		uc := newUserContext(s, userID)
		uc.rolling = u.RollingHistory
		uc.summary = u.ProfileSummary
		t.users[userID] = uc
	}
	sh := s.shard(id)
	sh.mu.Lock()
	sh.tenants[id] = t
	sh.mu.Unlock()
}

func (s *Store) Path() string { return s.path }

func (s *Store) LoadStatus() LoadStatus { return s.status }

// GetOrCreateTenant returns the tenant, creating a fully populated empty
// record on first reference.
func (s *Store) GetOrCreateTenant(tenantID string) *Tenant {
	tenantID = NormalizeID(tenantID)
	sh := s.shard(tenantID)
	sh.mu.RLock()
	t, ok := sh.tenants[tenantID]
	sh.mu.RUnlock()
	if ok {
		return t
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if t, ok := sh.tenants[tenantID]; ok {
		return t
	}
	t = newTenant(s, tenantID)
	sh.tenants[tenantID] = t
	s.touch()
	s.logger.Debug("conversation_tenant_created", "tenant_id", tenantID)
	return t
}

func (s *Store) GetOrCreateUser(tenantID, userID string) *UserContext {
	return s.GetOrCreateTenant(tenantID).User(userID)
}

// Lookup returns an existing tenant without creating one.
func (s *Store) Lookup(tenantID string) (*Tenant, bool) {
	tenantID = NormalizeID(tenantID)
	sh := s.shard(tenantID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	t, ok := sh.tenants[tenantID]
	return t, ok
}

func (s *Store) TenantIDs() []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id := range sh.tenants {
			out = append(out, id)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Snapshot copies the full store into its persisted shape.
func (s *Store) Snapshot() Document {
	doc := Document{}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		tenants := make([]*Tenant, 0, len(sh.tenants))
		for _, t := range sh.tenants {
			tenants = append(tenants, t)
		}
		sh.mu.RUnlock()
		for _, t := range tenants {
			doc[t.id] = t.record()
		}
	}
	return doc
}

// Dirty reports whether mutations happened since the last successful write.
func (s *Store) Dirty() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.version.Load() > s.saved
}

// Persist writes the full store. Concurrent calls are serialized; a call
// whose mutations were already captured by a later write returns without
// writing again. On failure the in-memory state stays authoritative and the
// next successful call carries every pending change.
func (s *Store) Persist(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	want := s.version.Load()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.saved >= want {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	lock, err := fsstore.LockFor(s.path, "conversation persist")
	if err != nil {
		return err
	}

	captured := s.version.Load()
	doc := s.Snapshot()
	err = lock.Do(lockCtx, func() error {
		return fsstore.WriteJSONAtomic(s.path, doc, fsstore.FileOptions{})
	})
	if err != nil {
		return fmt.Errorf("persist conversation state: %w", err)
	}
	s.saved = captured
	s.logger.Debug("conversation_state_saved", "path", s.path, "tenants", len(doc), "version", captured)
	return nil
}

func (s *Store) touch() {
	s.version.Add(1)
}

func (s *Store) shard(tenantID string) *tenantShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return &s.shards[h.Sum32()%shardCount]
}
