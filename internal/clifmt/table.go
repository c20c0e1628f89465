package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	fallbackWidth = 100
	minWrapWidth  = 24
)

// Table is a titled grid whose last column is word-wrapped to the terminal.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Empty   string
	// Placeholder fills a blank last cell.
	Placeholder string
	// Width overrides terminal detection; zero means detect.
	Width int
}

func (t Table) Print(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(t.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%d)", title, len(t.Rows)))
	}
	if len(t.Rows) == 0 {
		empty := strings.TrimSpace(t.Empty)
		if empty == "" {
			empty = "Nothing to show."
		}
		fmt.Fprintln(out, Warn(empty))
		return
	}

	cols := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}
	widths := make([]int, cols)
	for i := 0; i < cols-1; i++ {
		widths[i] = utf8.RuneCountInString(cell(t.Headers, i))
		for _, row := range t.Rows {
			if n := utf8.RuneCountInString(cell(row, i)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	widths[cols-1] = t.lastWidth(out, widths[:cols-1])

	if len(t.Headers) > 0 {
		head := make([]string, cols)
		rule := make([]string, cols)
		for i := range head {
			head[i] = Key(pad(cell(t.Headers, i), widths[i], i == cols-1))
			rule[i] = Dim(strings.Repeat("-", widths[i]))
		}
		fmt.Fprintln(out, strings.Join(head, "  "))
		fmt.Fprintln(out, strings.Join(rule, "  "))
	}

	indent := 0
	for _, w := range widths[:cols-1] {
		indent += w + 2
	}
	for _, row := range t.Rows {
		last := strings.TrimSpace(cell(row, cols-1))
		if last == "" {
			last = t.Placeholder
		}
		lead := make([]string, 0, cols)
		for i := 0; i < cols-1; i++ {
			text := pad(cell(row, i), widths[i], false)
			if i == 0 {
				text = Success(text)
			}
			lead = append(lead, text)
		}
		lines := wrap(last, widths[cols-1])
		lead = append(lead, lines[0])
		fmt.Fprintln(out, strings.TrimRight(strings.Join(lead, "  "), " "))
		for _, line := range lines[1:] {
			fmt.Fprintln(out, strings.Repeat(" ", indent)+line)
		}
	}
}

func (t Table) lastWidth(out io.Writer, lead []int) int {
	width := t.Width
	if width <= 0 {
		width = fallbackWidth
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				width = w
			}
		}
	}
	for _, w := range lead {
		width -= w + 2
	}
	if width < minWrapWidth {
		width = minWrapWidth
	}
	return width
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// wrap breaks text on spaces into lines of at most width runes. Words
// longer than width are cut.
func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || width <= 0 {
		return []string{strings.TrimSpace(text)}
	}
	var lines []string
	var cur []rune
	for _, word := range words {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
