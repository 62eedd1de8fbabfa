// Package queue hands asynchronous upgrade jobs to a job bus. NATS
// backs production; an in-process queue serves local dev and tests.
package queue

import (
	"context"
	"sync"

	"github.com/agentmint/agentmint/pkg/models"
)

// Queue accepts upgrade jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, job models.UpgradeJob) error
	Close()
}

// MemoryQueue collects jobs in memory.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []models.UpgradeJob
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job models.UpgradeJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Jobs returns a snapshot of everything enqueued so far.
func (q *MemoryQueue) Jobs() []models.UpgradeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.UpgradeJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func (q *MemoryQueue) Close() {}
