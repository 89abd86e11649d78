// Package output renders command results as tables, JSON, YAML or markdown.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/seatwatch/internal/cmd/table"
)

// Format names an output encoding selected with -o.
type Format string

// Supported formats.
const (
	FormatTable    Format = "table"
	FormatWide     Format = "wide"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Data is the tabular form every record type converts to.
type Data = table.Data

// Formatter writes data to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format. Unknown formats render
// a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: "  "}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{Wide: format == FormatWide}
	}
}

// ParseFormat validates a -o value. The empty string is accepted and
// left for DetectFormat.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(s))
	switch format {
	case "", FormatTable, FormatWide, FormatJSON, FormatYAML, FormatMarkdown:
		return format, nil
	}
	return "", fmt.Errorf("invalid format %q: must be one of: table, wide, json, yaml, markdown", s)
}

// DetectFormat returns the explicit format when one is given, a table on a
// terminal and JSON when stdout is piped.
func DetectFormat(explicit string) Format {
	if explicit != "" {
		return Format(strings.ToLower(explicit))
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatTable
	}
	return FormatJSON
}

// JSONFormatter writes data with encoding/json.
type JSONFormatter struct {
	Indent string
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(data)
}

// YAMLFormatter writes data as YAML. Types with a MarshalJSON method, such
// as events, keep their JSON shape.
type YAMLFormatter struct{}

// Format implements Formatter.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	out, err := yaml.MarshalWithOptions(data,
		yaml.Indent(2),
		yaml.IndentSequence(false),
		yaml.UseJSONMarshaler(),
	)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// TableFormatter renders Data with tablewriter. Other values are converted
// by reflection when they are structs or slices of structs, and written as
// JSON otherwise.
type TableFormatter struct {
	Wide bool
}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	d, ok := toData(data)
	if !ok {
		return (&JSONFormatter{Indent: "  "}).Format(w, data)
	}

	var cfg tablewriter.Config
	if len(d.ColumnAlignment) > 0 {
		align := make([]tw.Align, len(d.ColumnAlignment))
		for i, a := range d.ColumnAlignment {
			align[i] = twAlign(a)
		}
		cfg.Header.Alignment = tw.CellAlignment{PerColumn: align}
		cfg.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	t := tablewriter.NewTable(w, tablewriter.WithConfig(cfg))
	if len(d.Headers) > 0 {
		t.Header(anySlice(d.Headers)...)
	}
	for _, row := range d.Rows {
		if err := t.Append(anySlice(row)...); err != nil {
			return err
		}
	}
	return t.Render()
}

func twAlign(a table.Align) tw.Align {
	switch a {
	case table.AlignLeft:
		return tw.AlignLeft
	case table.AlignCenter:
		return tw.AlignCenter
	case table.AlignRight:
		return tw.AlignRight
	default:
		return tw.Skip
	}
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// toData converts data for the table and markdown formatters. A slice of
// structs becomes one row per element; a single struct becomes a
// property/value table.
func toData(data any) (Data, bool) {
	if d, ok := data.(Data); ok {
		return d, true
	}

	v := reflect.Indirect(reflect.ValueOf(data))
	switch {
	case v.Kind() == reflect.Struct:
		d := Data{Headers: []string{"Property", "Value"}}
		for i := range v.NumField() {
			if name, ok := columnName(v.Type().Field(i)); ok {
				d.Rows = append(d.Rows, []string{name, fmt.Sprint(v.Field(i).Interface())})
			}
		}
		return d, true

	case v.Kind() == reflect.Slice && v.Len() > 0 && v.Type().Elem().Kind() == reflect.Struct:
		elem := v.Type().Elem()
		var d Data
		var cols []int
		for i := range elem.NumField() {
			if name, ok := columnName(elem.Field(i)); ok {
				d.Headers = append(d.Headers, name)
				cols = append(cols, i)
			}
		}
		for i := range v.Len() {
			row := make([]string, len(cols))
			for j, c := range cols {
				row[j] = fmt.Sprint(v.Index(i).Field(c).Interface())
			}
			d.Rows = append(d.Rows, row)
		}
		return d, true
	}
	return Data{}, false
}

// columnName titles the json tag of an exported field ("user_id" -> "User Id").
func columnName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch tag {
	case "-":
		return "", false
	case "":
		return f.Name, true
	}
	// A Caser holds state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(tag, "_", " ")), true
}
