package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single HTTP exchange when no http.Client is
// supplied.
const DefaultHTTPTimeout = 30 * time.Second

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// HTTP is a Doer backed by net/http.
type HTTP struct {
	base   string
	client *http.Client
	header http.Header
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the http.Client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) { h.header.Add(key, value) }
}

// NewHTTP creates an HTTP transport rooted at baseURL, e.g.
// "http://localhost:8080". Request paths are appended verbatim.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: base url %q: scheme must be http or https", baseURL)
	}
	h := &HTTP{
		base:   strings.TrimRight(u.String(), "/"),
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		header: make(http.Header),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// BaseURL returns the normalized base URL.
func (h *HTTP) BaseURL() string { return h.base }

// Do sends req and returns the reply. Non-2xx replies and network failures
// are returned as *TransportError.
func (h *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s: %w", req.Route(), err)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, h.base+req.Path, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Message: err.Error(), Err: err}
	}
	for k, vs := range h.header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json, text/plain")
	}

	resp, err := h.client.Do(hreq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Message: networkMessage(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Message: "read body: " + err.Error(), Err: err}
	}
	if len(data) > maxBody {
		return nil, &TransportError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("response body exceeds %d bytes", maxBody),
			Method:  req.Method,
			Path:    req.Path,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
			Method:  req.Method,
			Path:    req.Path,
		}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// errorMessage extracts a human-readable message from an error reply. JSON
// bodies with a "message" or "error" field are unwrapped; other bodies are
// used as-is, falling back to the status text.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" || strings.HasPrefix(msg, "{") || strings.HasPrefix(msg, "<") {
		return http.StatusText(status)
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func networkMessage(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}
