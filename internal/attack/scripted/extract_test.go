package scripted

import (
	"errors"
	"net/http"
	"testing"

	"github.com/wesleyorama2/drove/internal/transport"
)

func TestGjsonPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"$", "@this"},
		{"$.", "@this"},
		{"$.token", "token"},
		{"$.users[0].name", "users.0.name"},
		{"$[1].id", "1.id"},
		{"$['users'][0]['name']", "users.0.name"},
		{`$["a"]`, "a"},
		{"users.0.name", "users.0.name"},
		{"$.a[2][3]", "a.2.3"},
		{"$.a[", "a["},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := gjsonPath(tt.path); got != tt.want {
				t.Errorf("gjsonPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	body := []byte(`{"users":[{"name":"ann","age":30},{"name":"bob"}],"none":null,"ok":true}`)

	tests := []struct {
		name    string
		body    []byte
		path    string
		want    string
		wantErr bool
	}{
		{name: "nested", body: body, path: "$.users[1].name", want: "bob"},
		{name: "number", body: body, path: "$.users[0].age", want: "30"},
		{name: "bool", body: body, path: "ok", want: "true"},
		{name: "null", body: body, path: "$.none", want: "null"},
		{name: "array", body: []byte(`[1,2]`), path: "$[1]", want: "2"},
		{name: "missing", body: body, path: "$.users[5].name", wantErr: true},
		{name: "empty body", body: nil, path: "$.a", wantErr: true},
		{name: "empty path", body: body, path: "", wantErr: true},
		{name: "not json", body: []byte("<html>"), path: "$.a", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.body, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_Sources(t *testing.T) {
	resp := &transport.Response{
		StatusCode: 201,
		Headers:    http.Header{"Location": []string{"/items/9"}},
		Body:       []byte(`{"id":9}`),
	}

	if got, err := Extract(resp, "body", "$.id"); err != nil || got != "9" {
		t.Errorf("body = %q, %v", got, err)
	}
	if got, err := Extract(resp, "header", "location"); err != nil || got != "/items/9" {
		t.Errorf("header = %q, %v", got, err)
	}
	if got, err := Extract(resp, "status", ""); err != nil || got != "201" {
		t.Errorf("status = %q, %v", got, err)
	}
	if _, err := Extract(resp, "header", "X-Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing header error = %v, want ErrNotFound", err)
	}
	if _, err := Extract(resp, "cookie", "a"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("unknown source error = %v, want ErrUnknownSource", err)
	}
}
