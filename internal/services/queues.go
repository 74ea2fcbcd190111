package services

import (
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

// QueueSet bundles the handles this backend dispatches to. Handles are
// injected so tests can swap in in-memory queues.
type QueueSet struct {
	Primary    queue.Handle
	Conversion queue.Handle
	Scoper     queue.Handle
	Multi      queue.Handle
	Deletion   queue.Handle
	Webhooks   queue.Handle
}

// ByName resolves a handle from its queue name, for the admin surface.
func (q QueueSet) ByName(name string) (queue.Handle, bool) {
	switch name {
	case queue.QueuePrimary:
		return q.Primary, true
	case queue.QueueConversion:
		return q.Conversion, true
	case queue.QueueScoper:
		return q.Scoper, true
	case queue.QueueMulti:
		return q.Multi, true
	case queue.QueueDeletion:
		return q.Deletion, true
	case queue.QueueWebhooks:
		return q.Webhooks, true
	}
	return nil, false
}

// All returns every handle in canonical order.
func (q QueueSet) All() []queue.Handle {
	return []queue.Handle{q.Primary, q.Conversion, q.Scoper, q.Multi, q.Deletion, q.Webhooks}
}

// ForVariant picks the terminal queue a variant's simulation job runs on.
func (q QueueSet) ForVariant(v types.JobVariant) queue.Handle {
	switch v {
	case types.VariantScoper:
		return q.Scoper
	case types.VariantMulti:
		return q.Multi
	default:
		return q.Primary
	}
}

// Close tears down every handle; errors are collected into the last one
// seen since shutdown keeps going regardless.
func (q QueueSet) Close() error {
	var last error
	for _, h := range q.All() {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil {
			last = err
		}
	}
	return last
}
