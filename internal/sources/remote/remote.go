// Package remote fetches catalog snapshots from an HTTP endpoint serving
// GET <base>/<semester>/<prefix> as YAML or JSON.
package remote

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// maxBody caps a snapshot response.
const maxBody = 32 << 20

// Source fetches snapshots over HTTP.
type Source struct {
	BaseURL string
	Client  *http.Client
	Header  http.Header
}

// Option configures a remote source.
type Option func(*Source)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(s *Source) { s.Client = c }
}

// WithHeader adds a request header, such as an API token.
func WithHeader(key, value string) Option {
	return func(s *Source) { s.Header.Add(key, value) }
}

// New creates a source for baseURL.
func New(baseURL string, opts ...Option) *Source {
	s := &Source{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: constants.FetchTimeout},
		Header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch implements seatwatch.Source. Non-2xx responses become a FetchError
// carrying the status code.
func (s *Source) Fetch(ctx context.Context, semester, prefix string) (catalog.Catalog, error) {
	endpoint := s.BaseURL + "/" + url.PathEscape(semester) + "/" + url.PathEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "build request", Err: err}
	}
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/yaml, application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "request " + endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewFetchError(semester, prefix, resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "read body", Err: err}
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "decode body", Err: err}
	}
	return c, nil
}
