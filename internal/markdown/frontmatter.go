package markdown

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFrontmatter decodes a leading YAML mapping block into T and returns
// the rest of the document. ok=false means there was no block, or the block
// is not a YAML mapping that decodes into T; contents is then returned
// untouched as the body.
func ParseFrontmatter[T any](contents string) (T, string, bool) {
	var zero T
	raw, body, hasFrontmatter := SplitFrontmatter(contents)
	if !hasFrontmatter {
		return zero, contents, false
	}
	if strings.TrimSpace(raw) == "" {
		return zero, body, true
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return zero, contents, false
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return zero, contents, false
	}
	var out T
	if err := node.Decode(&out); err != nil {
		return zero, contents, false
	}
	return out, body, true
}

// SplitFrontmatter splits contents into raw YAML and body. The block must
// open on the first line with "---" and close on a later "---" line. A
// leading UTF-8 BOM and CRLF line endings are tolerated.
func SplitFrontmatter(contents string) (string, string, bool) {
	normalized := strings.ReplaceAll(strings.TrimPrefix(contents, "\ufeff"), "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", normalized, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", normalized, false
}
