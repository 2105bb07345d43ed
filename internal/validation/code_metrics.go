package validation

import (
	"strings"

	"go.starlark.net/syntax"
)

// logicLines counts non-blank lines that are neither comments nor
// docstrings.
func (a *analysis) logicLines() int {
	count := 0
	for i, line := range a.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || a.docLines[i+1] {
			continue
		}
		count++
	}
	return count
}

// blockText is a statement list's source with indentation, blank lines
// and comments dropped, so copies at different depths compare equal.
func (a *analysis) blockText(body []syntax.Stmt) (string, int) {
	if len(body) == 0 {
		return "", 0
	}
	start := int(syntax.Start(body[0]).Line)
	end := int(syntax.End(body[len(body)-1]).Line)
	var b strings.Builder
	lines := 0
	for l := start; l <= end && l <= len(a.lines); l++ {
		text := strings.TrimSpace(a.lines[l-1])
		if i := strings.Index(text, "#"); i >= 0 && !strings.ContainsAny(text[:i], `"'`) {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
		lines++
	}
	return b.String(), lines
}

// bodies lists every statement list in the file: function bodies and the
// branches of if, for and while.
func (a *analysis) bodies() [][]syntax.Stmt {
	var out [][]syntax.Stmt
	inspect(a.file, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.DefStmt:
			out = append(out, n.Body)
		case *syntax.IfStmt:
			out = append(out, n.True)
			if !isElif(n) {
				out = append(out, n.False)
			}
		case *syntax.ForStmt:
			out = append(out, n.Body)
		case *syntax.WhileStmt:
			out = append(out, n.Body)
		}
		return true
	})
	return out
}
