package statepaths

import (
	"github.com/quailyquaily/guildmind/internal/pathutil"
	"github.com/spf13/viper"
)

const (
	DefaultStateFile  = "bot_data.json"
	DefaultPersonaDir = "context"
)

func StateFile() string {
	return pathutil.ResolvePath(viper.GetString("state.file"), DefaultStateFile)
}

func PersonaDir() string {
	return pathutil.ResolvePath(viper.GetString("persona.dir"), DefaultPersonaDir)
}
