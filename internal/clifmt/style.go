package clifmt

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiCyan   = "\x1b[36m"
)

var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd())))
}

// SetColor forces ANSI styling on or off.
func SetColor(on bool) { colorEnabled.Store(on) }

func style(code, s string) string {
	if !colorEnabled.Load() || s == "" {
		return s
	}
	return code + s + ansiReset
}

func Headerf(format string, args ...any) string {
	return style(ansiBold+ansiCyan, fmt.Sprintf(format, args...))
}

func Key(s string) string     { return style(ansiBold, s) }
func Dim(s string) string     { return style(ansiDim, s) }
func Success(s string) string { return style(ansiGreen, s) }
func Warn(s string) string    { return style(ansiYellow, s) }
func Error(s string) string   { return style(ansiRed, s) }
