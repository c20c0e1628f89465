package statepaths

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if got := StateFile(); got != DefaultStateFile {
		t.Fatalf("StateFile() = %q", got)
	}
	if got := PersonaDir(); got != DefaultPersonaDir {
		t.Fatalf("PersonaDir() = %q", got)
	}

	viper.Set("state.file", "/var/lib/guildmind/state.json")
	viper.Set("persona.dir", "personas/")
	if got := StateFile(); got != "/var/lib/guildmind/state.json" {
		t.Fatalf("StateFile() = %q", got)
	}
	if got := PersonaDir(); got != "personas" {
		t.Fatalf("PersonaDir() = %q", got)
	}
}
