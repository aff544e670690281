package imagerelay

import (
	"context"
	"sync/atomic"
)

// MockDescriber is a mock implementation of Describer.
type MockDescriber struct {
	NameValue    string
	InfoValue    ProviderInfo
	DescribeFunc func(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error)
	CloseFunc    func() error

	calls atomic.Int32
}

func (m *MockDescriber) Name() string {
	return m.NameValue
}

func (m *MockDescriber) Info() ProviderInfo {
	info := m.InfoValue
	if info.Name == "" {
		info.Name = m.NameValue
		info.AcceptsImage = true
		info.AcceptsText = true
	}
	return info
}

func (m *MockDescriber) Describe(ctx context.Context, req DescriptionRequest) (*DescriptionResult, error) {
	m.calls.Add(1)
	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx, req)
	}
	return &DescriptionResult{Text: "description"}, nil
}

func (m *MockDescriber) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns how many times Describe was invoked.
func (m *MockDescriber) Calls() int {
	return int(m.calls.Load())
}
