// Package mock provides a broker-free stand-in for the mq client so queue
// consumers and publishers can be tested without RabbitMQ.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"facilio.dev/envmon/pkg/mq"
)

// MockClient implements mq.ClientInterface in memory. Every method records
// its calls; each one can be steered with a Func hook, or falls back to the
// canned return values below.
type MockClient struct {
	mu sync.Mutex

	// PushFunc, when set, handles Push calls. Otherwise Push returns PushError.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is the canned Push result (nil means success).
	PushError error
	// PushCalls records every Push invocation in order.
	PushCalls []PushCall

	// UnsafePushFunc, when set, handles UnsafePush calls. Otherwise
	// UnsafePush returns UnsafePushError.
	UnsafePushFunc func(ctx context.Context, data []byte) error
	// UnsafePushError is the canned UnsafePush result.
	UnsafePushError error
	// UnsafePushCalls records every UnsafePush invocation in order.
	UnsafePushCalls []UnsafePushCall

	// ConsumeFunc, when set, handles Consume calls. Otherwise Consume
	// returns ConsumeChannel and ConsumeError.
	ConsumeFunc func() (<-chan amqp.Delivery, error)
	// ConsumeChannel is the delivery channel handed to consumers. Tests
	// replace it with their own channel to feed deliveries.
	ConsumeChannel <-chan amqp.Delivery
	// ConsumeError is the canned Consume result.
	ConsumeError error
	// ConsumeCalls counts Consume invocations.
	ConsumeCalls int

	// CloseFunc, when set, handles Close calls. Otherwise Close returns
	// CloseError.
	CloseFunc func() error
	// CloseError is the canned Close result.
	CloseError error
	// CloseCalls counts Close invocations.
	CloseCalls int
}

// PushCall records the arguments to a Push call.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// UnsafePushCall records the arguments to an UnsafePush call.
type UnsafePushCall struct {
	Ctx  context.Context
	Data []byte
}

// NewMockClient returns a mock that succeeds on every call.
func NewMockClient() *MockClient {
	return &MockClient{
		PushCalls:       make([]PushCall, 0),
		UnsafePushCalls: make([]UnsafePushCall, 0),
		ConsumeChannel:  make(chan amqp.Delivery),
	}
}

// Push records the call and returns the configured result.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = append(m.PushCalls, PushCall{
		Ctx:  ctx,
		Data: data,
	})

	if m.PushFunc != nil {
		return m.PushFunc(ctx, data)
	}
	return m.PushError
}

// UnsafePush records the call and returns the configured result.
func (m *MockClient) UnsafePush(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsafePushCalls = append(m.UnsafePushCalls, UnsafePushCall{
		Ctx:  ctx,
		Data: data,
	})

	if m.UnsafePushFunc != nil {
		return m.UnsafePushFunc(ctx, data)
	}
	return m.UnsafePushError
}

// Consume records the call and hands out the configured delivery channel.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConsumeCalls++

	if m.ConsumeFunc != nil {
		return m.ConsumeFunc()
	}
	return m.ConsumeChannel, m.ConsumeError
}

// Close records the call and returns the configured result.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return m.CloseError
}

// Reset drops all recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = make([]PushCall, 0)
	m.UnsafePushCalls = make([]UnsafePushCall, 0)
	m.ConsumeCalls = 0
	m.CloseCalls = 0
}

var _ mq.ClientInterface = (*MockClient)(nil)
