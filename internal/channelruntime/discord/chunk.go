package discord

import "strings"

// MaxMessageLength is the platform limit on message content, in characters.
const MaxMessageLength = 2000

// SplitMessage breaks text into pieces of at most limit runes, preferring to
// cut after a newline, then after a space. Empty text yields no pieces.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		cut := lastIndex(runes[:limit], '\n')
		if cut <= 0 {
			cut = lastIndex(runes[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
		} else {
			cut++
		}
		piece := strings.TrimRight(string(runes[:cut]), " \n")
		if piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimRight(string(runes), " \n"); rest != "" {
		out = append(out, rest)
	}
	return out
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
