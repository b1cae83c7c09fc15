// Package historian drains queued round records into long-term storage in
// batches.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/rps/internal/models"
	"github.com/sirupsen/logrus"
)

const popRetryDelay = 100 * time.Millisecond

// Source yields queued records. Pop returns (nil, nil) when nothing arrived
// within wait.
type Source interface {
	Pop(ctx context.Context, wait time.Duration) (*models.RoundRecord, error)
}

// SinkFunc persists one batch.
type SinkFunc func(ctx context.Context, recs []models.RoundRecord) error

// Service batches records from a Source and flushes them to a sink once the
// batch is full or FlushDelay has passed.
type Service struct {
	source Source
	sink   SinkFunc
	logger *logrus.Logger

	BatchSize  int
	FlushDelay time.Duration
	PopWait    time.Duration

	batchMu sync.Mutex
	batch   []models.RoundRecord
}

// New returns a service with batch size 20 and a 500ms flush delay.
func New(source Source, sink SinkFunc, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:     source,
		sink:       sink,
		logger:     logger,
		BatchSize:  20,
		FlushDelay: 500 * time.Millisecond,
		PopWait:    3 * time.Second,
	}
}

// Run consumes until ctx is cancelled, then flushes what is left.
func (hs *Service) Run(ctx context.Context) error {
	records := make(chan models.RoundRecord, hs.BatchSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hs.readLoop(ctx, records)
	}()

	ticker := time.NewTicker(hs.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hs.drain(records, done)
			hs.flush(context.Background())
			return nil
		case rec := <-records:
			if hs.append(rec) >= hs.BatchSize {
				hs.flush(ctx)
			}
		case <-ticker.C:
			hs.flush(ctx)
		}
	}
}

// readLoop hands every popped record to out. A record is already gone from
// the source once Pop returns it, so the send ignores cancellation; Run keeps
// draining out until the loop has exited.
func (hs *Service) readLoop(ctx context.Context, out chan<- models.RoundRecord) {
	for ctx.Err() == nil {
		rec, err := hs.source.Pop(ctx, hs.PopWait)
		if rec != nil {
			out <- *rec
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hs.logger.WithError(err).Warn("historian: pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
		}
	}
}

// drain collects records until the reader has stopped and nothing is left.
func (hs *Service) drain(records <-chan models.RoundRecord, done <-chan struct{}) {
	for {
		select {
		case rec := <-records:
			hs.append(rec)
		case <-done:
			for {
				select {
				case rec := <-records:
					hs.append(rec)
				default:
					return
				}
			}
		}
	}
}

func (hs *Service) append(rec models.RoundRecord) int {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.batch = append(hs.batch, rec)
	return len(hs.batch)
}

// flush writes the current batch. A failed batch is put back so the next
// flush retries it.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := hs.batch
	hs.batch = nil
	hs.batchMu.Unlock()

	if err := hs.sink(ctx, pending); err != nil {
		hs.logger.WithError(err).WithField("records", len(pending)).Error("historian: flush failed")
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return
	}
	hs.logger.WithField("records", len(pending)).Debug("historian: flushed rounds")
}
