package syncqueue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/remote"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

const opDrain = "syncqueue.drain"

// Drain replays the pending queue against the remote store in FIFO order.
// Each mutation is acknowledged only after the remote accepts it; the
// round stops on the first failure so replay order is preserved.
func (s *Service) Drain(ctx context.Context, client remote.Client) error {
	s.mu.Lock()
	s.status.Draining = true
	s.status.LastDrainAttempt = s.clock().UTC()
	pending := make([]resource.Mutation, len(s.queue))
	copy(pending, s.queue)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DrainAttempts.Inc()
	}

	var drainErr error
	for _, mutation := range pending {
		if err := ctx.Err(); err != nil {
			drainErr = err
			break
		}
		if err := s.replay(ctx, client, mutation); err != nil {
			s.logger.Warn("mutation replay failed, keeping queued",
				zap.String("operation", opDrain),
				zap.String("table", string(mutation.Table)),
				zap.String("action", string(mutation.Action)),
				zap.Int64("seq", mutation.Seq),
				zap.Error(err))
			drainErr = err
			break
		}
		s.Ack(mutation.Seq)
	}

	s.mu.Lock()
	s.status.Draining = false
	if drainErr != nil {
		s.status.LastDrainError = drainErr.Error()
	} else {
		s.status.LastDrainError = ""
	}
	s.mu.Unlock()

	if drainErr != nil && s.metrics != nil {
		s.metrics.DrainFailures.Inc()
	}
	return drainErr
}

func (s *Service) replay(ctx context.Context, client remote.Client, mutation resource.Mutation) error {
	switch mutation.Action {
	case resource.ActionInsert:
		return client.Insert(ctx, mutation.Table, mutation.Payload)
	case resource.ActionUpdate:
		targetID := mutation.TargetID
		// Settings updates are queued without a target: the singleton row
		// is keyed by its owner.
		if targetID == "" && mutation.Table == resource.TableSettings {
			targetID = s.ownerID
		}
		return client.Update(ctx, mutation.Table, targetID, mutation.Payload)
	case resource.ActionDelete:
		return client.Delete(ctx, mutation.Table, mutation.TargetID)
	}
	// Unknown actions are acked away rather than blocking the queue forever.
	s.logger.Error("dropping mutation with unknown action",
		zap.String("operation", opDrain),
		zap.String("action", string(mutation.Action)),
		zap.Int64("seq", mutation.Seq))
	return nil
}

// Run drains on an interval until ctx ends, backing off after failed
// rounds so an unreachable remote store is retried gently.
func (s *Service) Run(ctx context.Context, client remote.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	backoff := NewBackoff(interval, 10*interval, 2.0)

	for {
		wait := interval
		if err := s.Drain(ctx, client); err != nil {
			wait = backoff.Next()
		} else {
			backoff.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
