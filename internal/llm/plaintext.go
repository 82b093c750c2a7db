package llm

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var reLeftoverMarks = regexp.MustCompile(`\*\*|__|(?m)^#+\s*`)

// MarkdownToPlain strips Markdown emphasis, headings, list markers and code
// fences, keeping one paragraph per line. Models asked for plain text still
// reach for ** now and then.
func MarkdownToPlain(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.CodeSpan:
			// children are Text nodes; nothing extra to emit
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(source))
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				flush()
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	out := strings.Join(blocks, "\n")
	return strings.TrimSpace(reLeftoverMarks.ReplaceAllString(out, ""))
}
