package conversation

import (
	"strings"
	"sync"
)

// Tenant is one server's state. All methods are safe for concurrent use;
// the main history and channel flags share the tenant lock, users carry
// their own.
type Tenant struct {
	id    string
	store *Store

	mu         sync.Mutex
	continuous []string
	ignored    []string
	main       History
	personas   map[string]string

	usersMu sync.RWMutex
	users   map[string]*UserContext
}

func newTenant(store *Store, id string) *Tenant {
	return &Tenant{
		id:         id,
		store:      store,
		continuous: []string{},
		ignored:    []string{},
		main:       History{},
		personas:   map[string]string{},
		users:      map[string]*UserContext{},
	}
}

func (t *Tenant) ID() string { return t.id }

func (t *Tenant) IsContinuous(channelID string) bool {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return containsID(t.continuous, channelID)
}

// SetContinuous adds or removes channelID from the continuous set and
// reports whether membership changed.
func (t *Tenant) SetContinuous(channelID string, on bool) bool {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed bool
	t.continuous, changed = toggleID(t.continuous, channelID, on)
	if changed {
		t.store.touch()
	}
	return changed
}

func (t *Tenant) IsKeywordIgnored(channelID string) bool {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return containsID(t.ignored, channelID)
}

func (t *Tenant) SetKeywordIgnored(channelID string, on bool) bool {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed bool
	t.ignored, changed = toggleID(t.ignored, channelID, on)
	if changed {
		t.store.touch()
	}
	return changed
}

func (t *Tenant) ChannelPersona(channelID string) (string, bool) {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.personas[channelID]
	return name, ok
}

// SetChannelPersona records name for channelID. It returns false when the
// channel already used that persona.
func (t *Tenant) SetChannelPersona(channelID, name string) bool {
	channelID = NormalizeID(channelID)
	name = strings.ToLower(strings.TrimSpace(name))
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.personas[channelID]; ok && cur == name {
		return false
	}
	t.personas[channelID] = name
	t.store.touch()
	return true
}

func (t *Tenant) ClearChannelPersona(channelID string) bool {
	channelID = NormalizeID(channelID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.personas[channelID]; !ok {
		return false
	}
	delete(t.personas, channelID)
	t.store.touch()
	return true
}

// MainHistory returns a copy of the shared main history.
func (t *Tenant) MainHistory() History {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.main.Clone()
}

func (t *Tenant) AppendMainExchange(userText, modelText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.main = AppendExchange(t.main, t.store.mainCap, userText, modelText)
	t.store.touch()
}

// User returns the user's context, creating an empty one on first use.
func (t *Tenant) User(userID string) *UserContext {
	userID = NormalizeID(userID)
	t.usersMu.RLock()
	u, ok := t.users[userID]
	t.usersMu.RUnlock()
	if ok {
		return u
	}

	t.usersMu.Lock()
	defer t.usersMu.Unlock()
	if u, ok := t.users[userID]; ok {
		return u
	}
	u = newUserContext(t.store, userID)
	t.users[userID] = u
	t.store.touch()
	return u
}

func (t *Tenant) UserCount() int {
	t.usersMu.RLock()
	defer t.usersMu.RUnlock()
	return len(t.users)
}

func (t *Tenant) record() TenantRecord {
	t.mu.Lock()
	rec := TenantRecord{
		SetChannels:           append(channelIDs{}, t.continuous...),
		IgnoredChannels:       append(channelIDs{}, t.ignored...),
		MainChatHistory:       t.main.Clone(),
		ChannelActiveContexts: make(map[string]string, len(t.personas)),
	}
	for k, v := range t.personas {
		rec.ChannelActiveContexts[k] = v
	}
	t.mu.Unlock()

	t.usersMu.RLock()
	users := make(map[string]*UserContext, len(t.users))
	for k, v := range t.users {
		users[k] = v
	}
	t.usersMu.RUnlock()

	rec.UserSpecificContext = make(map[string]UserRecord, len(users))
	for id, u := range users {
		rec.UserSpecificContext[id] = u.record()
	}
	return rec
}

// UserContext is one user's memory inside a tenant.
type UserContext struct {
	id    string
	store *Store

	mu      sync.Mutex
	rolling History
	summary string
}

func newUserContext(store *Store, id string) *UserContext {
	return &UserContext{id: id, store: store, rolling: History{}}
}

func (u *UserContext) ID() string { return u.id }

func (u *UserContext) RollingHistory() History {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rolling.Clone()
}

func (u *UserContext) AppendExchange(userText, modelText string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rolling = AppendExchange(u.rolling, u.store.rollingCap, userText, modelText)
	u.store.touch()
}

func (u *UserContext) ProfileSummary() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.summary
}

func (u *UserContext) SetProfileSummary(summary string) {
	summary = strings.TrimSpace(summary)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.summary == summary {
		return
	}
	u.summary = summary
	u.store.touch()
}

func (u *UserContext) record() UserRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return UserRecord{RollingHistory: u.rolling.Clone(), ProfileSummary: u.summary}
}

// NormalizeID is the single canonical form for tenant, channel and user ids.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

func containsID(ids []string, id string) bool {
	for _, cur := range ids {
		if cur == id {
			return true
		}
	}
	return false
}

func toggleID(ids []string, id string, on bool) ([]string, bool) {
	present := containsID(ids, id)
	switch {
	case on && !present:
		return append(ids, id), true
	case !on && present:
		out := make([]string, 0, len(ids)-1)
		for _, cur := range ids {
			if cur != id {
				out = append(out, cur)
			}
		}
		return out, true
	default:
		return ids, false
	}
}
