package scripted

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/drove/internal/transport"
)

var (
	// ErrNotFound is returned when an extraction matches nothing.
	ErrNotFound = errors.New("value not found")

	// ErrUnknownSource is returned for a source other than body, header or status.
	ErrUnknownSource = errors.New("unknown extract source")
)

// Extract reads a value out of resp. For the body source, path is a
// JSONPath ($.users[0].name) or gjson (users.0.name) expression; for the
// header source it is the header name. The status source ignores path.
func Extract(resp *transport.Response, source, path string) (string, error) {
	switch source {
	case "body", "":
		return ExtractJSON(resp.Body, path)
	case "header":
		if v := resp.Header(path); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("header %s: %w", path, ErrNotFound)
	case "status":
		return strconv.Itoa(resp.StatusCode), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
}

// ExtractJSON returns the value at path in a JSON document. Null values
// come back as "null".
func ExtractJSON(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", errors.New("empty JSON body")
	}
	if path == "" {
		return "", errors.New("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("response body is not valid JSON")
	}

	result := gjson.GetBytes(body, gjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path %s: %w", path, ErrNotFound)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// gjsonPath converts a JSONPath expression to gjson syntax:
// $.users[0].name and $['users'][0]['name'] both become users.0.name.
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] != '[' {
			sb.WriteByte(path[i])
			continue
		}
		end := strings.IndexByte(path[i:], ']')
		if end < 0 {
			sb.WriteString(path[i:])
			break
		}
		key := strings.Trim(path[i+1:i+end], `'"`)
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(key)
		i += end
	}
	return sb.String()
}
