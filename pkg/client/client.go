// Package client provides the HTTP client collaborator used by sequences to talk to the
// server under test.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

// ErrNoBaseURL is returned when a client is built without a server address.
var ErrNoBaseURL = errors.New("client base URL is required")

// Client is the only transport a test body sees. Get resolves path against the server base
// URL; SetAuth("") removes the bearer token so unauthenticated calls can be simulated.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, headers map[string]string) (*Response, error)
	SetAuth(token string)
	Token() string
	// Clone returns an independent client sharing configuration but not auth mutations.
	Clone() Client
}

// Response is a decoded reply. Resource is nil when the body is not a JSON object.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Resource map[string]any
}

// NewResponse decodes body into Resource when possible.
func NewResponse(status int, header http.Header, body []byte) *Response {
	response := &Response{Status: status, Header: header, Body: body}

	var resource map[string]any
	if len(body) > 0 && json.Unmarshal(body, &resource) == nil {
		response.Resource = resource
	}

	return response
}

// ResourceType returns the resourceType of the decoded body, or "" when absent.
func (r *Response) ResourceType() string {
	if r == nil || r.Resource == nil {
		return ""
	}

	resourceType, _ := r.Resource["resourceType"].(string)

	return resourceType
}

// Entries returns entry[].resource of a bundle body in bundle order.
func (r *Response) Entries() []map[string]any {
	if r == nil || r.Resource == nil {
		return nil
	}

	rawEntries, _ := r.Resource["entry"].([]any)
	entries := make([]map[string]any, 0, len(rawEntries))

	for _, rawEntry := range rawEntries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}

		if resource, ok := entry["resource"].(map[string]any); ok {
			entries = append(entries, resource)
		}
	}

	return entries
}

// EntriesOfType filters Entries by resourceType.
func (r *Response) EntriesOfType(entityType string) []map[string]any {
	var matching []map[string]any

	for _, entry := range r.Entries() {
		if entry["resourceType"] == entityType {
			matching = append(matching, entry)
		}
	}

	return matching
}

// NextLink returns the bundle's "next" paging link, if any.
func (r *Response) NextLink() string {
	if r == nil || r.Resource == nil {
		return ""
	}

	links, _ := r.Resource["link"].([]any)
	for _, rawLink := range links {
		link, ok := rawLink.(map[string]any)
		if !ok {
			continue
		}

		if link["relation"] == "next" {
			next, _ := link["url"].(string)

			return next
		}
	}

	return ""
}
