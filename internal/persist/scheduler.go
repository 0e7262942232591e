// Package persist runs the fixed-interval background save tick on top of a
// Document Store's own debounced saveAsync.
package persist

import (
	"context"
	"time"

	"github.com/inkdrift/scriptorium/internal/docstore"
	"github.com/inkdrift/scriptorium/pkg/logger"
)

// AuditRecorder records a best-effort, fire-and-forget save event. A nil
// AuditRecorder is a valid no-op.
type AuditRecorder interface {
	RecordSave(byteSize int)
}

// Scheduler drives the Document Store's periodic save tick.
type Scheduler struct {
	store        *docstore.Store
	interval     time.Duration
	audit        AuditRecorder
	intervalLock chan time.Duration
	log          logger.Component
}

// New creates a Scheduler ticking every interval.
func New(store *docstore.Store, interval time.Duration, audit AuditRecorder) *Scheduler {
	return &Scheduler{
		store:        store,
		interval:     interval,
		audit:        audit,
		intervalLock: make(chan time.Duration, 1),
		log:          logger.With("component", "persist"),
	}
}

// SetInterval changes the tick period, taking effect on the next tick. Used
// by config hot-reload.
func (s *Scheduler) SetInterval(interval time.Duration) {
	select {
	case s.intervalLock <- interval:
	default:
		<-s.intervalLock
		s.intervalLock <- interval
	}
}

// Run blocks, ticking saves until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newInterval := <-s.intervalLock:
			ticker.Reset(newInterval)
		case <-ticker.C:
			if !s.store.Dirty() {
				continue
			}
			size := s.store.ByteSize()
			s.store.SaveAsync()
			if s.audit != nil {
				s.audit.RecordSave(size)
			}
			s.log.Debug("persistence tick: %d bytes", size)
		}
	}
}
