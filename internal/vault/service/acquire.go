package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/pkg/idx"
)

const (
	// DefaultPoolSize is the number of concurrent browser sessions the host
	// is assumed to sustain. This is the single concurrency knob for the
	// acquisition resource.
	DefaultPoolSize = 2
	// queueFactor sizes the task queue relative to the pool. Tasks beyond
	// pool capacity queue here instead of spawning workers.
	queueFactor = 4
)

// AcquireRunner runs one blocking acquisition end to end: provision a browser
// session, drive the login flow, return the extracted token. It may block its
// goroutine for tens of seconds; it must clean up its own browser resources
// on every exit path.
type AcquireRunner interface {
	Run(ctx context.Context, creds domain.Credentials) (domain.AcquiredToken, error)
}

// AcquisitionResult is what a Future resolves to. Exactly one of Err or the
// token fields is meaningful. Err never carries credentials.
type AcquisitionResult struct {
	Token    domain.AcquiredToken
	RecordID idx.ID
	Err      error
}

// Future is the caller's handle on an in-flight acquisition.
type Future struct {
	done   chan struct{}
	result AcquisitionResult
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Await blocks until the acquisition completes or ctx expires. On ctx expiry
// the result carries a timeout error; the underlying browser work is not
// interrupted mid-step (there is no safe interruption point inside the portal
// flow) but its cleanup still runs and the abandoned result is dropped.
func (f *Future) Await(ctx context.Context) AcquisitionResult {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return AcquisitionResult{
			Err: domain.WrapError(domain.KindTimeout, "timed out waiting for token acquisition", ctx.Err()),
		}
	}
}

// Done exposes the completion channel for select-based callers.
func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) resolve(res AcquisitionResult) {
	f.result = res
	close(f.done)
}

type acquisitionTask struct {
	creds       domain.Credentials
	submittedAt time.Time
	future      *Future
}

// AcquireService is the bridge between the concurrent HTTP surface and the
// blocking browser automation. Acquire never blocks the caller; the work runs
// on a fixed-size pool of workers, each owning at most one browser session at
// a time.
type AcquireService struct {
	Runner   AcquireRunner
	Tokens   *TokenService
	Logger   *slog.Logger
	PoolSize int

	tasks  chan *acquisitionTask
	stopCh chan struct{}
	wg     sync.WaitGroup

	// mu orders enqueues against shutdown: once stopped is set, no task may
	// enter the queue, so Stop's drain leaves no future unresolved.
	mu      sync.Mutex
	stopped bool
}

// NewAcquireService wires the dispatcher. poolSize <= 0 falls back to
// DefaultPoolSize.
func NewAcquireService(runner AcquireRunner, tokens *TokenService, logger *slog.Logger, poolSize int) *AcquireService {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &AcquireService{
		Runner:   runner,
		Tokens:   tokens,
		Logger:   logger,
		PoolSize: poolSize,
		tasks:    make(chan *acquisitionTask, poolSize*queueFactor),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool. Non-blocking; call Stop to shut down.
func (s *AcquireService) Start() {
	for i := range s.PoolSize {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.Logger.Info("acquisition dispatcher started", "pool_size", s.PoolSize, "queue_cap", cap(s.tasks))
}

// Stop shuts the pool down. In-flight acquisitions finish; tasks still queued
// are failed so no caller waits on a future that will never resolve. Acquire
// calls arriving after Stop are rejected up front.
func (s *AcquireService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	for {
		select {
		case task := <-s.tasks:
			task.future.resolve(AcquisitionResult{
				Err: domain.NewError(domain.KindInternal, "service shutting down"),
			})
		default:
			s.Logger.Info("acquisition dispatcher stopped")
			return
		}
	}
}

// Acquire validates the credentials and schedules the acquisition, returning
// a future immediately. Validation failures and queue overflow are rejected
// here, before any browser resource is touched.
func (s *AcquireService) Acquire(creds domain.Credentials) (*Future, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	task := &acquisitionTask{
		creds:       creds,
		submittedAt: time.Now(),
		future:      newFuture(),
	}

	// The enqueue happens under the shutdown lock: anything queued here is
	// queued before Stop sets stopped, so Stop's drain will resolve it.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, domain.NewError(domain.KindInternal, "service shutting down")
	}

	select {
	case s.tasks <- task:
		return task.future, nil
	default:
		return nil, domain.NewError(domain.KindRateLimited, "acquisition queue is full, retry later")
	}
}

func (s *AcquireService) worker(id int) {
	defer s.wg.Done()

	log := s.Logger.With("worker", id)
	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.tasks:
			s.process(log, task)
		}
	}
}

func (s *AcquireService) process(log *slog.Logger, task *acquisitionTask) {
	masked := domain.MaskAccountID(task.creds.AccountID)
	log.Info("acquisition started",
		"account", masked,
		"queued_ms", time.Since(task.submittedAt).Milliseconds(),
	)

	token, err := s.runGuarded(task.creds)
	if err != nil {
		kind := domain.KindOf(err)
		log.Warn("acquisition failed", "account", masked, "kind", string(kind))
		task.future.resolve(AcquisitionResult{Err: err})
		return
	}

	recordID, err := s.Tokens.Put(context.Background(),
		token.AccountID, token.Token, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		log.Error("token persistence failed", "account", masked, "kind", string(domain.KindOf(err)))
		task.future.resolve(AcquisitionResult{Err: err})
		return
	}

	log.Info("acquisition succeeded",
		"account", masked,
		"record_id", recordID.String(),
		"expires_at", token.ExpiresAt,
	)
	task.future.resolve(AcquisitionResult{Token: token, RecordID: recordID})
}

// runGuarded keeps a panicking automation library from taking the worker
// down with it; the panic becomes a classified error on the future.
func (s *AcquireService) runGuarded(creds domain.Credentials) (token domain.AcquiredToken, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.KindInternal, "acquisition aborted unexpectedly",
				fmt.Errorf("panic: %v", r))
		}
	}()

	return s.Runner.Run(context.Background(), creds)
}
