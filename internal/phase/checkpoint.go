package phase

import (
	"context"
	"sync"

	"scoutline.dev/orchestrator/internal/model"
)

// Name identifies a point in the phase state machine.
type Name string

const (
	Scope    Name = "scope"
	Fill     Name = "fill"
	Research Name = "research"
	Finalize Name = "finalize"
	QC       Name = "qc"
	Done     Name = "done"
)

// order is the deterministic, unconditional phase sequence.
var order = []Name{Scope, Fill, Research, Finalize, QC, Done}

func next(n Name) Name {
	for i, p := range order {
		if p == n && i+1 < len(order) {
			return order[i+1]
		}
	}
	return Done
}

// Checkpoint is the unit of resumable progress: State as of the checkpoint,
// and the phase that should run next (Done once the workflow has finished).
type Checkpoint struct {
	State model.State
	Next  Name
}

// Checkpointer persists and resumes workflow progress keyed by thread_id. The
// core only requires that phase transitions are idempotent under replay —
// the checkpointer itself may be backed by anything, including nothing.
type Checkpointer interface {
	Save(ctx context.Context, threadID string, checkpoint Checkpoint) error
	Load(ctx context.Context, threadID string) (Checkpoint, bool, error)
}

// MemoryCheckpointer is an in-process Checkpointer, sufficient for a single
// server instance or for tests. It is the default when no durable
// checkpointer is wired.
type MemoryCheckpointer struct {
	mu    sync.Mutex
	store map[string]Checkpoint
}

// NewMemoryCheckpointer creates an empty in-memory checkpoint store.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{store: map[string]Checkpoint{}}
}

func (m *MemoryCheckpointer) Save(_ context.Context, threadID string, checkpoint Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	checkpoint.State = checkpoint.State.Snapshot()
	m.store[threadID] = checkpoint
	return nil
}

func (m *MemoryCheckpointer) Load(_ context.Context, threadID string) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.store[threadID]
	return cp, ok, nil
}
