package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
)

// OutputFormat is the output format of a command.
type OutputFormat string

const (
	// FormatYAML outputs YAML. It is the default.
	FormatYAML OutputFormat = "yaml"
	// FormatJSON outputs indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatTable outputs a Table as aligned columns.
	FormatTable OutputFormat = "table"
)

// ParseFormat parses an output format name. Empty yields FormatYAML.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return FormatYAML, nil
	case FormatYAML, FormatJSON, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Table is tabular output. Values that are not a Table are printed as YAML
// in table format.
type Table struct {
	Header []string
	Rows   [][]string
}

// Output writes v to w in format f.
func Output(w io.Writer, v any, f OutputFormat) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatTable:
		if t, ok := v.(Table); ok {
			return outputTable(w, t)
		}
		return outputYAML(w, v)
	case FormatYAML, "":
		return outputYAML(w, v)
	default:
		return fmt.Errorf("unsupported output format: %s", f)
	}
}

func outputYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func outputTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Header) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
