package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

// ErrScriptExhausted is returned when a scripted model has no reply left.
var ErrScriptExhausted = errors.New("scripted model has no more replies")

// Responder computes a reply from the request.
type Responder func(ctx context.Context, req ports.CompletionRequest) (domain.Message, error)

// Model is a scripted ports.Model for tests and offline runs.
// Queued replies are consumed first; the responder, when set, answers the rest.
type Model struct {
	mu        sync.Mutex
	queue     []reply
	responder Responder
	requests  []ports.CompletionRequest
}

type reply struct {
	msg domain.Message
	err error
}

// NewModel creates a model that answers with msgs in order.
func NewModel(msgs ...domain.Message) *Model {
	m := &Model{}
	for _, msg := range msgs {
		m.Then(msg)
	}
	return m
}

// Then queues a reply.
func (m *Model) Then(msg domain.Message) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, reply{msg: msg})
	return m
}

// ThenError queues a failure.
func (m *Model) ThenError(err error) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, reply{err: err})
	return m
}

// Respond sets the responder used once the queue is empty.
func (m *Model) Respond(fn Responder) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// Complete implements ports.Model.
func (m *Model) Complete(ctx context.Context, req ports.CompletionRequest) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return r.msg, r.err
	}
	fn := m.responder
	m.mu.Unlock()

	if fn == nil {
		return domain.Message{}, ErrScriptExhausted
	}
	return fn(ctx, req)
}

// Requests returns every request received, in order.
func (m *Model) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}
