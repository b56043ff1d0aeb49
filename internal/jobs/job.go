// Package jobs implements the Job Service (spec.md §4.9): an in-process
// registry and state machine for long-running background work, explicitly
// NOT backed by an external queue — a single instance per JobKey is
// enforced with an in-memory map, not a distributed broker.
package jobs

import (
	"context"
)

// Mode selects how much work a job instance processes.
type Mode string

const (
	ModeMissing Mode = "missing"
	ModeAll     Mode = "all"
)

// Job is a registered unit of work, discovered at process start.
type Job interface {
	Key() string
	Name() string
	Description() string
	DisplayOrder() int
	SupportsAllMode() bool
	Execute(ctx context.Context, mode Mode, reporter *Reporter) error
}
