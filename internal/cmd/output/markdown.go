package output

import (
	"io"

	md "github.com/nao1215/markdown"
)

// MarkdownFormatter outputs a GitHub-flavored markdown table.
type MarkdownFormatter struct{}

// Format outputs table data as markdown. Non-table data is converted the
// same way the table formatter converts it, falling back to JSON.
func (f *MarkdownFormatter) Format(w io.Writer, data any) error {
	d, ok := toData(data)
	if !ok {
		return (&JSONFormatter{Indent: "  "}).Format(w, data)
	}
	return md.NewMarkdown(w).
		Table(md.TableSet{Header: d.Headers, Rows: d.Rows}).
		Build()
}
