package mocks

import (
	"context"
	"net/url"

	"github.com/dukex/conformance/pkg/client"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of client.Client. Auth changes are tracked on the
// mock itself rather than through expectations.
type MockClient struct {
	mock.Mock

	token string
}

// NewMockClient returns a mock client carrying token.
func NewMockClient(token string) *MockClient {
	return &MockClient{token: token}
}

func (m *MockClient) Get(ctx context.Context, path string, query url.Values, headers map[string]string) (*client.Response, error) {
	args := m.Called(ctx, path, query, headers)

	response, _ := args.Get(0).(*client.Response)

	return response, args.Error(1)
}

func (m *MockClient) SetAuth(token string) {
	m.token = token
}

func (m *MockClient) Token() string {
	return m.token
}

// Clone returns the mock itself so expectations stay on one object.
func (m *MockClient) Clone() client.Client {
	return m
}
