package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quailyquaily/guildmind/internal/clifmt"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetViper(t)
	clifmt.SetColor(false)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPersonasCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pirate.md"), []byte("---\ndescription: Talks like a pirate\n---\nArr."), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "helper.txt"), []byte("Help."), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, err := runCLI(t, "personas", "--persona-dir", dir)
	if err != nil {
		t.Fatalf("personas error = %v", err)
	}
	for _, want := range []string{"(2)", "pirate.md", "Talks like a pirate", "helper.txt"} {
		if !strings.Contains(out, want) {
			t.Fatalf("personas output missing %q:\n%s", want, out)
		}
	}
}

func TestStateCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot_data.json")

	out, err := runCLI(t, "state", "check", "--state-file", path)
	if err != nil {
		t.Fatalf("state check error = %v", err)
	}
	if !strings.Contains(out, "no state file yet") {
		t.Fatalf("missing file output:\n%s", out)
	}

	doc := `{"g1":{"set_channels":[1,2],"user_specific_context":{"u1":{"profile_summary":""}}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out, err = runCLI(t, "state", "check", "--state-file", path)
	if err != nil {
		t.Fatalf("state check error = %v", err)
	}
	var row []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "g1 ") {
			row = strings.Fields(line)
		}
	}
	if strings.Join(row, " ") != "g1 2 0 0 0 turns, 1 users" {
		t.Fatalf("state report row = %q:\n%s", row, out)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out, err = runCLI(t, "state", "check", "--state-file", path)
	if err != nil {
		t.Fatalf("state check error = %v", err)
	}
	if !strings.Contains(out, "malformed document") || !strings.Contains(out, "corrupt") {
		t.Fatalf("corrupt report:\n%s", out)
	}
}

func TestServeRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("GUILDMIND_DISCORD_TOKEN", "")
	_, err := runCLI(t, "serve", "--state-file", filepath.Join(t.TempDir(), "s.json"))
	if err == nil || !strings.Contains(err.Error(), "discord.token") {
		t.Fatalf("serve error = %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "guildmind dev\n") {
		t.Fatalf("version = %q", out)
	}
}
