package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

const (
	// RollingHistoryCap bounds a user's rolling history, counted in turns.
	RollingHistoryCap = 100
	// MainHistoryCap bounds a tenant's shared main history, counted in turns.
	MainHistoryCap = 200
)

type Turn struct {
	Role Role
	Text string
}

type turnPart struct {
	Text string `json:"text"`
}

type turnJSON struct {
	Role  Role       `json:"role"`
	Parts []turnPart `json:"parts"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(turnJSON{Role: t.Role, Parts: []turnPart{{Text: t.Text}}})
}

// UnmarshalJSON accepts parts either as {"text": ...} objects or bare strings.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Role {
	case RoleUser, RoleModel:
	default:
		return fmt.Errorf("turn role %q is invalid", raw.Role)
	}
	texts := make([]string, 0, len(raw.Parts))
	for _, part := range raw.Parts {
		var obj turnPart
		if err := json.Unmarshal(part, &obj); err == nil {
			texts = append(texts, obj.Text)
			continue
		}
		var s string
		if err := json.Unmarshal(part, &s); err != nil {
			return fmt.Errorf("turn part is neither object nor string: %w", err)
		}
		texts = append(texts, s)
	}
	t.Role = raw.Role
	t.Text = strings.Join(texts, "")
	return nil
}

// History is an ordered sequence of turns, always appended as
// (user, model) pairs.
type History []Turn

func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// AppendExchange appends a (user, model) pair and evicts the oldest pairs
// until the result fits in capacity. The input slice is not modified.
func AppendExchange(h History, capacity int, userText, modelText string) History {
	capacity = normalizeCapacity(capacity)
	drop := 0
	for len(h)-drop+2 > capacity {
		drop += 2
	}
	if drop > len(h) {
		drop = len(h)
	}
	out := make(History, 0, len(h)-drop+2)
	out = append(out, h[drop:]...)
	return append(out,
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleModel, Text: modelText},
	)
}

// normalizeHistory repairs a loaded history: a dangling oldest turn is
// dropped to restore even length and overflow is evicted from the front.
func normalizeHistory(h History, capacity int) History {
	capacity = normalizeCapacity(capacity)
	drop := len(h) % 2
	if over := len(h) - drop - capacity; over > 0 {
		drop += over
	}
	out := make(History, 0, len(h)-drop)
	return append(out, h[drop:]...)
}

// normalizeCapacity keeps capacity even and able to hold one exchange.
func normalizeCapacity(capacity int) int {
	if capacity < 2 {
		return 2
	}
	return capacity - capacity%2
}
