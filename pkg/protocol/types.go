package protocol

// Wire types exchanged between the host and the wasm guest.
// This package defines shared types used across internal packages.

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Request is the serialized form of an HTTP request handed to the guest's
// serve export, and of outbound requests the guest hands back to the host
// fetch binding.
type Request struct {
	Method  string              `json:"method"`
	URI     string              `json:"uri"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    []byte              `json:"body,omitempty"`

	// Redirect selects redirect handling for outbound fetches: "follow"
	// (default) or "manual". Ignored for inbound requests.
	Redirect string `json:"redirect,omitempty"`
}

// Response is the serialized form of an HTTP response, in both directions.
type Response struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    []byte              `json:"body,omitempty"`
}

// FromHTTP converts an incoming request into its wire form.
// The request body is fully read; callers should not reuse r.Body afterwards.
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}

	return &Request{
		Method:  r.Method,
		URI:     r.URL.String(),
		Headers: r.Header,
		Body:    body,
	}, nil
}

// HTTPRequest converts the wire form back into an *http.Request suitable for
// an HTTP client.
func (r *Request) HTTPRequest() (*http.Request, error) {
	req, err := http.NewRequest(r.Method, r.URI, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	for name, values := range r.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req, nil
}

// Header returns the first value of the named request header, or "".
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return http.Header(r.Headers).Get(name)
}

// FromHTTPResponse converts a client response into its wire form, reading and
// closing the body.
func FromHTTPResponse(res *http.Response) (*Response, error) {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status:  res.StatusCode,
		Headers: res.Header,
		Body:    body,
	}, nil
}

// Write writes the response to w exactly as produced: headers first, then
// status, then body. No headers are added or rewritten beyond Content-Length
// when absent.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for name, values := range r.Headers {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	if len(r.Body) > 0 && h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	_, err := w.Write(r.Body)
	return err
}
