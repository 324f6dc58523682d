package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel: configurable
// responses, error injection, and call history, all thread-safe.
//
// Each Chat call returns the next entry of Responses; once exhausted the
// last entry repeats. When Err is set it is returned instead.
//
// Example:
//
//	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "billing"}}}
//	out, _ := mock.Chat(ctx, messages, nil)
type MockChatModel struct {
	// Responses is the sequence of replies to return, in order.
	Responses []ChatOut

	// Err, when set, is returned by every Chat call.
	Err error

	// Calls records every invocation for assertions.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel. The call is recorded even when it fails.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and response cursor for test reuse.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Chat has been invoked.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
