// Package logsink persists debug and request records to newline-delimited
// files from a single background goroutine.
package logsink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Format is the closed set of line encodings a sink can write.
type Format int

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = iota
	// FormatRaw writes a human-readable debug dump per line.
	FormatRaw
	// FormatCSV writes one CSV row per line. Records must implement CSVRecord.
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatRaw:
		return "raw"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// ErrInvalidFormat is returned for format strings outside the allowed set.
var ErrInvalidFormat = errors.New("invalid log format")

// DebugFormats are the formats accepted for the debug log.
var DebugFormats = []Format{FormatJSON, FormatRaw}

// RequestFormats are the formats accepted for the request log.
var RequestFormats = []Format{FormatJSON, FormatCSV, FormatRaw}

// ParseFormat resolves s against the allowed formats. An empty string
// selects the first allowed format.
func ParseFormat(s string, allowed ...Format) (Format, error) {
	if len(allowed) == 0 {
		allowed = RequestFormats
	}
	if s == "" {
		return allowed[0], nil
	}

	names := make([]string, 0, len(allowed))
	for _, f := range allowed {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
		names = append(names, f.String())
	}
	return 0, fmt.Errorf("%w %q (expected one of %s)", ErrInvalidFormat, s, strings.Join(names, ", "))
}

// CSVRecord is implemented by records that can be written as CSV.
type CSVRecord interface {
	CSVFields() []string
}

var dumper = spew.ConfigState{
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Render encodes rec as a single line without the trailing newline.
func Render(format Format, rec any) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(rec)
	case FormatRaw:
		line := dumper.Sprintf("%+v", rec)
		line = strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(line)
		return []byte(line), nil
	case FormatCSV:
		r, ok := rec.(CSVRecord)
		if !ok {
			return nil, fmt.Errorf("%T cannot be written as csv", rec)
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(r.CSVFields()); err != nil {
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\r\n"), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidFormat, int(format))
	}
}
