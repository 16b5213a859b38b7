package http

import (
	"fmt"
	"net/http"
	"time"
)

// BearerRoundTripper adds an Authorization: Bearer header to every request.
// A 401 is passed through unchanged; uploads are never retried.
type BearerRoundTripper struct {
	base  http.RoundTripper
	token string
}

// NewBearerRoundTripper wraps base, or http.DefaultTransport when nil
func NewBearerRoundTripper(base http.RoundTripper, token string) *BearerRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BearerRoundTripper{base: base, token: token}
}

// RoundTrip implements the http.RoundTripper interface
func (t *BearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid modifying the original
	newReq := req.Clone(req.Context())
	newReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))
	return t.base.RoundTrip(newReq)
}

// CreateAuthenticatedClient returns a client that authenticates with token
func CreateAuthenticatedClient(base *http.Client, token string) *http.Client {
	var transport http.RoundTripper
	timeout := 10 * time.Minute
	if base != nil {
		transport = base.Transport
		timeout = base.Timeout
	}
	return &http.Client{
		Transport: NewBearerRoundTripper(transport, token),
		Timeout:   timeout,
	}
}
