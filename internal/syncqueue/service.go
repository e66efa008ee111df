package syncqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopdeskhq/shopdesk/internal/localstore"
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

var (
	errMissingStore = errors.New("syncqueue: cache store is required")
	errMissingOwner = errors.New("syncqueue: owner id is required")

	noOpLogger = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "syncqueue.service.new"
	opEnqueue    = "syncqueue.enqueue"
	opPersist    = "syncqueue.persist"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// QueueStatus is the non-authoritative observability surface over the
// pending queue.
type QueueStatus struct {
	PendingCount     int
	LastEnqueuedAt   time.Time
	LastDrainAttempt time.Time
	LastDrainError   string
	Draining         bool
}

// ServiceConfig describes the dependencies for the mutation queue.
type ServiceConfig struct {
	Store   *localstore.Store
	OwnerID resource.OwnerID
	Logger  *zap.Logger
	Clock   func() time.Time
	Metrics *Metrics
}

// Service owns the durable append-only queue of not-yet-acknowledged
// mutations for a single owner. The queue is the only durable record of
// unconfirmed intent: it is persisted on every change and reloaded on
// construction so a crash before draining loses nothing.
type Service struct {
	mu      sync.Mutex
	store   *localstore.Store
	ownerID string
	logger  *zap.Logger
	clock   func() time.Time
	metrics *Metrics

	queue   []resource.Mutation
	nextSeq int64
	status  QueueStatus
}

// NewService constructs the queue service and reloads any pending
// mutations persisted by a previous session. A corrupt stored queue is
// logged and treated as empty rather than surfaced to the caller.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.OwnerID.String() == "" {
		return nil, newServiceError(opServiceNew, "missing_owner", errMissingOwner)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	service := &Service{
		store:   cfg.Store,
		ownerID: cfg.OwnerID.String(),
		logger:  logger,
		clock:   clock,
		metrics: cfg.Metrics,
		nextSeq: 1,
	}
	service.reload()
	return service, nil
}

func (s *Service) reload() {
	stored, found, err := s.store.Get(localstore.QueueKey(s.ownerID))
	if err != nil {
		s.logger.Error("mutation queue load failed",
			zap.String("operation", opServiceNew),
			zap.String("reason", "store_read_failed"),
			zap.Error(err))
		return
	}
	if !found || stored == "" {
		return
	}

	var queue []resource.Mutation
	if err := json.Unmarshal([]byte(stored), &queue); err != nil {
		s.logger.Error("mutation queue cache is malformed, starting empty",
			zap.String("operation", opServiceNew),
			zap.String("reason", "malformed_queue_cache"),
			zap.Error(err))
		return
	}

	s.queue = queue
	for _, mutation := range queue {
		if mutation.Seq >= s.nextSeq {
			s.nextSeq = mutation.Seq + 1
		}
	}
	s.updatePendingGauge()
}

// Enqueue appends a mutation to the durable queue. Queueing is
// best-effort local-first: a persistence failure is logged, never
// returned, and the mutation stays in memory for this session.
func (s *Service) Enqueue(table resource.Table, action resource.Action, targetID string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutation := resource.Mutation{
		Seq:               s.nextSeq,
		Table:             table,
		Action:            action,
		TargetID:          targetID,
		Payload:           payload,
		EnqueuedAtSeconds: s.clock().UTC().Unix(),
	}
	s.nextSeq++
	s.queue = append(s.queue, mutation)
	s.status.LastEnqueuedAt = s.clock().UTC()

	s.persistLocked(opEnqueue)
	s.updatePendingGauge()
	if s.metrics != nil {
		s.metrics.Enqueued.Inc()
	}
}

// Pending returns the queued mutations for a table, oldest first.
func (s *Service) Pending(table resource.Table) []resource.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]resource.Mutation, 0, len(s.queue))
	for _, mutation := range s.queue {
		if mutation.Table == table {
			out = append(out, mutation)
		}
	}
	return out
}

// All returns every queued mutation, oldest first.
func (s *Service) All() []resource.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]resource.Mutation, len(s.queue))
	copy(out, s.queue)
	return out
}

// Ack removes an acknowledged mutation. Draining calls this once the
// remote store has durably accepted the write; until then the mutation
// stays queued.
func (s *Service) Ack(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for index, mutation := range s.queue {
		if mutation.Seq == seq {
			s.queue = append(s.queue[:index], s.queue[index+1:]...)
			break
		}
	}
	s.persistLocked(opPersist)
	s.updatePendingGauge()
	if s.metrics != nil {
		s.metrics.Acked.Inc()
	}
}

// Status reports the current observability snapshot.
func (s *Service) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	status.PendingCount = len(s.queue)
	return status
}

func (s *Service) persistLocked(operation string) {
	encoded, err := json.Marshal(s.queue)
	if err != nil {
		s.logger.Error("mutation queue encode failed",
			zap.String("operation", operation),
			zap.String("reason", "encode_failed"),
			zap.Error(err))
		return
	}
	if err := s.store.Put(localstore.QueueKey(s.ownerID), string(encoded)); err != nil {
		s.logger.Error("mutation queue persist failed",
			zap.String("operation", operation),
			zap.String("reason", "store_write_failed"),
			zap.Error(err))
	}
}

func (s *Service) updatePendingGauge() {
	if s.metrics != nil {
		s.metrics.Pending.Set(float64(len(s.queue)))
	}
}
