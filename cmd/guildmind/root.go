package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "GUILDMIND"
)

// legacyEnv maps config keys to the bare environment variable names older
// deployments use. The prefixed name always wins when both are set.
var legacyEnv = map[string]string{
	"discord.token":          "DISCORD_TOKEN",
	"llm.api_key":            "GEMINI_API_KEY",
	"llm.model":              "GEMINI_MODEL_NAME",
	"router.command_prefix":  "COMMAND_PREFIX",
	"router.keywords":        "BOT_KEYWORDS",
	"persona.default_prompt": "SYSTEM_PROMPT",
	"persona.dir":            "CONTEXT_DIR",
	"ratelimit.max_prompts":  "RATE_LIMIT_MAX_PROMPTS",
	"ratelimit.window":       "RATE_LIMIT_SECONDS",
}

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "guildmind",
		Short:        "Conversational AI bot for Discord servers",
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info; debug if --trace).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")
	cmd.PersistentFlags().Bool("trace", false, "Print extra debug info to stderr.")
	cmd.PersistentFlags().String("state-file", "", "Path of the conversation state document (default bot_data.json).")
	cmd.PersistentFlags().String("persona-dir", "", "Directory holding persona files (default context).")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))
	_ = viper.BindPFlag("trace", cmd.PersistentFlags().Lookup("trace"))
	_ = viper.BindPFlag("state.file", cmd.PersistentFlags().Lookup("state-file"))
	_ = viper.BindPFlag("persona.dir", cmd.PersistentFlags().Lookup("persona-dir"))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPersonasCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	initViperDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	bindLegacyEnv()

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}

func bindLegacyEnv() {
	replacer := strings.NewReplacer("-", "_", ".", "_")
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		_ = viper.BindEnv(key, prefixed, legacy)
	}
}
