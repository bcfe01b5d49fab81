package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output. Only tables can be rendered as CSV.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, json, or csv)", s)
	}
}

// Formatter formats command output.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// Table is a tabular result.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Append adds one row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// MarshalJSON renders the table as a list of header-keyed objects.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				obj[strings.ToLower(h)] = row[i]
			}
		}
		out = append(out, obj)
	}
	return json.Marshal(out)
}

// TextFormatter formats output as plain text. Tables are column-aligned.
type TextFormatter struct{}

// Format converts data to text format.
func (f *TextFormatter) Format(data any) ([]byte, error) {
	var b strings.Builder
	if err := f.FormatTo(&b, data); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(*Table)
	if !ok {
		s := fmt.Sprintf("%v", data)
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		_, err := io.WriteString(w, s)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON format.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter formats tables as CSV.
type CSVFormatter struct{}

// Format converts data to CSV format.
func (f *CSVFormatter) Format(data any) ([]byte, error) {
	var b strings.Builder
	if err := f.FormatTo(&b, data); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// FormatTo writes data to writer in CSV format.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(*Table)
	if !ok {
		return fmt.Errorf("csv output is not supported for %T", data)
	}

	csvWriter := csv.NewWriter(w)
	if len(t.Headers) > 0 {
		if err := csvWriter.Write(t.Headers); err != nil {
			return err
		}
	}
	if err := csvWriter.WriteAll(t.Rows); err != nil {
		return err
	}
	return csvWriter.Error()
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}
