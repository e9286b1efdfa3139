package service_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubRunner scripts acquisition outcomes without a browser.
type stubRunner struct {
	mu      sync.Mutex
	calls   int
	run     func(ctx context.Context, creds domain.Credentials) (domain.AcquiredToken, error)
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *stubRunner) Run(ctx context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	cur := r.active.Add(1)
	for {
		max := r.maxSeen.Load()
		if cur <= max || r.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	defer r.active.Add(-1)

	return r.run(ctx, creds)
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func okToken(creds domain.Credentials) domain.AcquiredToken {
	now := time.Now().UTC()
	return domain.AcquiredToken{
		AccountID: creds.AccountID,
		Token:     "token-for-" + creds.AccountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func startAcquire(t *testing.T, runner service.AcquireRunner, poolSize int) (*service.AcquireService, *service.TokenService) {
	t.Helper()

	tokens := newTokenService(t)
	svc := service.NewAcquireService(runner, tokens, quietLogger(), poolSize)
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc, tokens
}

func TestAcquire_SuccessPersistsToken(t *testing.T) {
	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		return okToken(creds), nil
	}}
	svc, tokens := startAcquire(t, runner, 1)

	future, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := future.Await(ctx)
	require.NoError(t, res.Err)
	require.Equal(t, testAccount, res.Token.AccountID)
	require.False(t, res.RecordID.IsZero())

	stored, ok, err := tokens.GetLatestValid(context.Background(), testAccount)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token-for-"+testAccount, stored.Token)
	require.Equal(t, res.RecordID.String(), stored.RecordID)
}

func TestAcquire_ValidationRejectsBeforeRunner(t *testing.T) {
	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		return okToken(creds), nil
	}}
	svc, _ := startAcquire(t, runner, 1)

	_, err := svc.Acquire(domain.Credentials{AccountID: "bad-shape", Secret: "hunter2"})
	require.Error(t, err)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.Acquire(domain.Credentials{AccountID: testAccount})
	require.Error(t, err)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	require.Zero(t, runner.callCount(), "runner must not run for invalid submissions")
}

func TestAcquire_RunnerErrorReachesFuture(t *testing.T) {
	runner := &stubRunner{run: func(context.Context, domain.Credentials) (domain.AcquiredToken, error) {
		return domain.AcquiredToken{}, domain.NewError(domain.KindLoginFailed, "portal rejected login")
	}}
	svc, _ := startAcquire(t, runner, 1)

	future, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "wrong"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := future.Await(ctx)
	require.Error(t, res.Err)
	require.Equal(t, domain.KindLoginFailed, domain.KindOf(res.Err))
}

func TestAcquire_PanicBecomesInternalError(t *testing.T) {
	runner := &stubRunner{run: func(context.Context, domain.Credentials) (domain.AcquiredToken, error) {
		panic("browser library exploded")
	}}
	svc, _ := startAcquire(t, runner, 1)

	future, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := future.Await(ctx)
	require.Error(t, res.Err)
	require.Equal(t, domain.KindInternal, domain.KindOf(res.Err))

	// The worker survives the panic and keeps serving.
	runner.run = func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		return okToken(creds), nil
	}
	future, err = svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)
	res = future.Await(ctx)
	require.NoError(t, res.Err)
}

func TestAcquire_ConcurrencyBoundedByPoolSize(t *testing.T) {
	const poolSize = 2

	release := make(chan struct{})
	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		<-release
		return okToken(creds), nil
	}}
	svc, _ := startAcquire(t, runner, poolSize)

	var futures []*service.Future
	for range poolSize * 3 {
		f, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
		require.NoError(t, err)
		futures = append(futures, f)
	}

	// Give workers time to pick up whatever they are going to pick up.
	require.Eventually(t, func() bool {
		return runner.callCount() == poolSize
	}, 2*time.Second, 10*time.Millisecond)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, f := range futures {
		res := f.Await(ctx)
		require.NoError(t, res.Err)
	}
	require.LessOrEqual(t, runner.maxSeen.Load(), int32(poolSize))
}

func TestAcquire_FullQueueIsRejected(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		<-release
		return okToken(creds), nil
	}}

	tokens := newTokenService(t)
	svc := service.NewAcquireService(runner, tokens, quietLogger(), 1)
	svc.Start()
	t.Cleanup(svc.Stop)

	// Saturate the single worker, then the queue behind it.
	creds := domain.Credentials{AccountID: testAccount, Secret: "hunter2"}
	require.Eventually(t, func() bool {
		_, err := svc.Acquire(creds)
		if err != nil {
			require.Equal(t, domain.KindRateLimited, domain.KindOf(err))
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "queue never filled")
}

func TestFuture_AwaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		<-release
		return okToken(creds), nil
	}}
	svc, _ := startAcquire(t, runner, 1)

	future, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := future.Await(ctx)
	require.Error(t, res.Err)
	require.Equal(t, domain.KindTimeout, domain.KindOf(res.Err))
}

func TestAcquire_StopResolvesQueuedFutures(t *testing.T) {
	release := make(chan struct{})

	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		<-release
		return okToken(creds), nil
	}}

	tokens := newTokenService(t)
	svc := service.NewAcquireService(runner, tokens, quietLogger(), 1)
	svc.Start()

	busy, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runner.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	queued, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.NoError(t, err)

	close(release)
	svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, busy.Await(ctx).Err)

	// The queued task either ran before the worker observed the stop signal or
	// was failed by Stop's drain; either way its future must resolve.
	res := queued.Await(ctx)
	if res.Err != nil {
		require.Equal(t, domain.KindInternal, domain.KindOf(res.Err))
	}
}

func TestAcquire_RejectedAfterStop(t *testing.T) {
	runner := &stubRunner{run: func(_ context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
		return okToken(creds), nil
	}}

	tokens := newTokenService(t)
	svc := service.NewAcquireService(runner, tokens, quietLogger(), 1)
	svc.Start()
	svc.Stop()

	// A submission landing after shutdown must be rejected up front rather
	// than enqueued behind a drain that already ran, which would leave its
	// future unresolved forever.
	_, err := svc.Acquire(domain.Credentials{AccountID: testAccount, Secret: "hunter2"})
	require.Error(t, err)
	require.Equal(t, domain.KindInternal, domain.KindOf(err))
	require.Zero(t, runner.callCount())

	// Stop is idempotent.
	svc.Stop()
}
