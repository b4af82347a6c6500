package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes a single HTTP request issued by a virtual user.
type Request struct {
	Method string
	Path   string

	// Name overrides the path when the request is aggregated, so that
	// "/users/17" and "/users/42" can share a "/users/{id}" bucket.
	Name string

	QueryParams url.Values
	Headers     map[string]string
	Body        interface{}
}

// NewRequest creates a new HTTP request
func NewRequest(method, path string) *Request {
	return &Request{
		Method:      strings.ToUpper(method),
		Path:        path,
		QueryParams: make(url.Values),
		Headers:     make(map[string]string),
	}
}

// WithName sets the aggregation name of the request.
func (r *Request) WithName(name string) *Request {
	r.Name = name
	return r
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithQueryParam adds a query parameter to the request
func (r *Request) WithQueryParam(key, value string) *Request {
	r.QueryParams.Add(key, value)
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// DisplayName returns the name used to key metrics for this request.
func (r *Request) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Path
}

// URL resolves the request path against baseURL.
func (r *Request) URL(baseURL string) (string, error) {
	if strings.HasPrefix(r.Path, "http://") || strings.HasPrefix(r.Path, "https://") {
		return r.Path, nil
	}

	reqURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	path := r.Path
	rawQuery := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, rawQuery = path[:i], path[i+1:]
	}

	if reqURL.Path == "" {
		reqURL.Path = "/" + strings.TrimLeft(path, "/")
	} else {
		reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("invalid query in %q: %w", r.Path, err)
	}
	for key, values := range r.QueryParams {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	reqURL.RawQuery = query.Encode()

	return reqURL.String(), nil
}

// Build constructs an http.Request from the Request.
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	target, err := r.URL(baseURL)
	if err != nil {
		return nil, err
	}

	bodyReader, contentType, err := r.bodyReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// BodyString renders the body for debug output.
func (r *Request) BodyString() string {
	switch body := r.Body.(type) {
	case nil:
		return ""
	case string:
		return body
	case []byte:
		return string(body)
	case io.Reader:
		return ""
	default:
		b, err := json.Marshal(body)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func (r *Request) bodyReader() (io.Reader, string, error) {
	switch body := r.Body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(body), "", nil
	case []byte:
		return bytes.NewReader(body), "", nil
	case io.Reader:
		return body, "", nil
	default:
		// Assume JSON for other types
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(jsonBody), "application/json", nil
	}
}
