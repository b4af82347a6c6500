package transport

import (
	"context"
	"io"
	"testing"
)

func TestRequest_URL(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		baseURL     string
		queryParams map[string]string
		expectedURL string
	}{
		{
			name:        "simple path",
			path:        "/users",
			baseURL:     "https://api.example.com",
			expectedURL: "https://api.example.com/users",
		},
		{
			name:        "root path",
			path:        "/",
			baseURL:     "http://127.0.0.1:8080",
			expectedURL: "http://127.0.0.1:8080/",
		},
		{
			name:        "trailing slash in base URL",
			path:        "/users",
			baseURL:     "https://api.example.com/",
			expectedURL: "https://api.example.com/users",
		},
		{
			name:        "base URL with prefix",
			path:        "about.html",
			baseURL:     "https://example.com/site",
			expectedURL: "https://example.com/site/about.html",
		},
		{
			name:        "query parameters",
			path:        "/users",
			baseURL:     "https://api.example.com",
			queryParams: map[string]string{"page": "1", "limit": "10"},
			expectedURL: "https://api.example.com/users?limit=10&page=1",
		},
		{
			name:        "inline query",
			path:        "/search?q=go",
			baseURL:     "https://api.example.com",
			expectedURL: "https://api.example.com/search?q=go",
		},
		{
			name:        "absolute path ignores base",
			path:        "https://other.example.com/x",
			baseURL:     "https://api.example.com",
			expectedURL: "https://other.example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("GET", tt.path)
			for k, v := range tt.queryParams {
				req.WithQueryParam(k, v)
			}

			got, err := req.URL(tt.baseURL)
			if err != nil {
				t.Fatalf("URL() error = %v", err)
			}
			if got != tt.expectedURL {
				t.Errorf("URL() = %s, want %s", got, tt.expectedURL)
			}
		})
	}
}

func TestRequest_BuildJSONBody(t *testing.T) {
	req := NewRequest("post", "/users").
		WithBody(map[string]string{"name": "John"}).
		WithHeader("X-Trace", "abc")

	httpReq, err := req.Build(context.Background(), "https://api.example.com")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if httpReq.Method != "POST" {
		t.Errorf("Method = %s, want POST", httpReq.Method)
	}
	if got := httpReq.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", got)
	}
	if got := httpReq.Header.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %s, want abc", got)
	}

	body, _ := io.ReadAll(httpReq.Body)
	if string(body) != `{"name":"John"}` {
		t.Errorf("body = %s", body)
	}
	if req.BodyString() != `{"name":"John"}` {
		t.Errorf("BodyString() = %s", req.BodyString())
	}
}

func TestRequest_DisplayName(t *testing.T) {
	req := NewRequest("GET", "/users/17")
	if req.DisplayName() != "/users/17" {
		t.Errorf("DisplayName() = %s, want /users/17", req.DisplayName())
	}

	req.WithName("/users/{id}")
	if req.DisplayName() != "/users/{id}" {
		t.Errorf("DisplayName() = %s, want /users/{id}", req.DisplayName())
	}
}
