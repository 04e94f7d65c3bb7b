package ai

import "context"

// MockProvider is a test double for AI providers. When Responses is set,
// successive Complete calls consume it in order (the last entry repeats);
// otherwise Response is returned for every call.
type MockProvider struct {
	Response    string
	Responses   []string
	Err         error
	LastRequest *CompletionRequest  // captures the last request for inspection
	Requests    []CompletionRequest // every request, in order
	calls       int
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

// NewScriptedProvider creates a MockProvider that returns the given responses
// one per call.
func NewScriptedProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.LastRequest = &req
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := m.Response
	if len(m.Responses) > 0 {
		i := m.calls
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		content = m.Responses[i]
	}
	m.calls++

	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
