package localize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/me/stagehand/pkg/uri"
)

// Format tags a deepcopy-eligible document type. The tag is resolved
// once at the document boundary and drives both parsing and
// serialization, so the walker never inspects file names.
type Format int

const (
	FormatJSON Format = iota
	FormatTSV
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatTSV:
		return "tsv"
	case FormatCSV:
		return "csv"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FormatFor resolves the format for a document URI by extension.
func FormatFor(u uri.URI) (Format, bool) {
	switch u.Ext() {
	case ".json":
		return FormatJSON, true
	case ".tsv":
		return FormatTSV, true
	case ".csv":
		return FormatCSV, true
	}
	return 0, false
}

func (f Format) delimiter() rune {
	if f == FormatCSV {
		return ','
	}
	return '\t'
}

// Parse decodes text into a document tree: nested map[string]any /
// []any / scalar values for JSON, [][]string rows for TSV and CSV.
func (f Format) Parse(text string) (any, error) {
	switch f {
	case FormatJSON:
		var doc any
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return doc, nil
	case FormatTSV, FormatCSV:
		r := csv.NewReader(strings.NewReader(text))
		r.Comma = f.delimiter()
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported format %s", f)
}

// Serialize renders a document tree back to text. JSON objects are
// emitted with sorted keys and four-space indentation, so repeated
// rewrites of the same tree are byte-identical. TSV/CSV preserve row
// and column order exactly.
func (f Format) Serialize(doc any) (string, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			return "", fmt.Errorf("serialize json: %w", err)
		}
		return string(data) + "\n", nil
	case FormatTSV, FormatCSV:
		rows, ok := doc.([][]string)
		if !ok {
			return "", fmt.Errorf("serialize %s: unexpected tree type %T", f, doc)
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Comma = f.delimiter()
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("serialize %s: %w", f, err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("unsupported format %s", f)
}
