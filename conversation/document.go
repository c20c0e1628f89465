package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Document is the persisted form of the whole store, keyed by tenant id.
type Document map[string]TenantRecord

type TenantRecord struct {
	SetChannels           channelIDs            `json:"set_channels"`
	IgnoredChannels       channelIDs            `json:"ignored_channels_for_keywords"`
	MainChatHistory       History               `json:"main_chat_history"`
	UserSpecificContext   map[string]UserRecord `json:"user_specific_context"`
	ChannelActiveContexts map[string]string     `json:"channel_active_contexts"`
}

type UserRecord struct {
	RollingHistory History `json:"rolling_history"`
	ProfileSummary string  `json:"profile_summary"`
}

// channelIDs decodes ids written either as JSON strings or as the platform's
// native integers, and always encodes strings.
type channelIDs []string

func (c *channelIDs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = channelIDs{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(channelIDs, 0, len(raw))
	for _, item := range raw {
		id, err := decodeChannelID(item)
		if err != nil {
			return err
		}
		if id == "" || containsID(out, id) {
			continue
		}
		out = append(out, id)
	}
	*c = out
	return nil
}

func decodeChannelID(item json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return NormalizeID(s), nil
	}
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("channel id %s is neither string nor integer", strings.TrimSpace(string(item)))
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("channel id %s is not an integer", n.String())
	}
	return n.String(), nil
}

// materialize fills every field a partial record is missing and repairs
// histories that violate the even-length and capacity bounds.
func (r TenantRecord) materialize(rollingCap, mainCap int) TenantRecord {
	if r.SetChannels == nil {
		r.SetChannels = channelIDs{}
	}
	if r.IgnoredChannels == nil {
		r.IgnoredChannels = channelIDs{}
	}
	r.MainChatHistory = normalizeHistory(r.MainChatHistory, mainCap)
	users := make(map[string]UserRecord, len(r.UserSpecificContext))
	for id, u := range r.UserSpecificContext {
		u.RollingHistory = normalizeHistory(u.RollingHistory, rollingCap)
		users[NormalizeID(id)] = u
	}
	r.UserSpecificContext = users
	personas := make(map[string]string, len(r.ChannelActiveContexts))
	for ch, name := range r.ChannelActiveContexts {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		personas[NormalizeID(ch)] = name
	}
	r.ChannelActiveContexts = personas
	return r
}
