package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/guildmind/ratelimit"
	"github.com/spf13/viper"
)

// keywordsFromViper accepts either a list or a comma-separated string.
func keywordsFromViper() []string {
	var raw []string
	switch v := viper.Get("router.keywords").(type) {
	case string:
		raw = strings.Split(v, ",")
	default:
		raw = viper.GetStringSlice("router.keywords")
	}
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// rateLimitFromViper reads the window as a duration ("8s") or as a bare
// integer number of seconds.
func rateLimitFromViper() ratelimit.Config {
	cfg := ratelimit.Config{
		MaxPrompts: viper.GetInt("ratelimit.max_prompts"),
		Window:     ratelimit.DefaultWindow,
	}
	raw := strings.TrimSpace(viper.GetString("ratelimit.window"))
	if secs, err := strconv.Atoi(raw); err == nil {
		cfg.Window = time.Duration(secs) * time.Second
	} else if d, err := time.ParseDuration(raw); err == nil {
		cfg.Window = d
	}
	return cfg
}
