package main

import (
	"time"

	"github.com/quailyquaily/guildmind/commands"
	"github.com/quailyquaily/guildmind/internal/statepaths"
	"github.com/quailyquaily/guildmind/providers/gemini"
	"github.com/quailyquaily/guildmind/ratelimit"
	"github.com/quailyquaily/guildmind/router"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Discord
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.max_concurrency", 4)
	viper.SetDefault("discord.drain_timeout", 30*time.Second)

	// Completion backend
	viper.SetDefault("llm.provider", "gemini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", gemini.DefaultModel)
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	// Routing
	viper.SetDefault("router.command_prefix", commands.DefaultPrefix)
	viper.SetDefault("router.keywords", router.DefaultKeywords)

	// Personas
	viper.SetDefault("persona.default_prompt", router.DefaultPrompt)
	viper.SetDefault("persona.default_name", "")
	viper.SetDefault("persona.dir", statepaths.DefaultPersonaDir)
	viper.SetDefault("persona.watch", true)

	// Rate limiting
	viper.SetDefault("ratelimit.max_prompts", ratelimit.DefaultMaxPrompts)
	viper.SetDefault("ratelimit.window", ratelimit.DefaultWindow)
	viper.SetDefault("ratelimit.backend", "memory")
	viper.SetDefault("ratelimit.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("ratelimit.redis.password", "")
	viper.SetDefault("ratelimit.redis.db", 0)
	viper.SetDefault("ratelimit.redis.prefix", ratelimit.DefaultRedisPrefix)
	viper.SetDefault("ratelimit.sweep_interval", time.Minute)

	// State
	viper.SetDefault("state.file", statepaths.DefaultStateFile)
	viper.SetDefault("state.retry_delay", 5*time.Second)

	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)
}
