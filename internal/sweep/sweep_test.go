package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velurapp/velura/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubLifecycle implements service.SubscriptionService with a canned
// DowngradeExpired result.
type stubLifecycle struct {
	service.SubscriptionService

	calls      int
	downgraded int
	err        error
}

func (s *stubLifecycle) DowngradeExpired(ctx context.Context) (int, error) {
	s.calls++
	return s.downgraded, s.err
}

func TestRunOnceInvokesDowngrade(t *testing.T) {
	stub := &stubLifecycle{downgraded: 3}
	runner := NewRunner(stub, "@hourly", testLogger())

	runner.RunOnce(context.Background())

	assert.Equal(t, 1, stub.calls)
}

func TestRunOnceSurvivesFailure(t *testing.T) {
	stub := &stubLifecycle{err: errors.New("db down")}
	runner := NewRunner(stub, "@hourly", testLogger())

	// Must not panic; the next scheduled run retries.
	runner.RunOnce(context.Background())
	runner.RunOnce(context.Background())

	assert.Equal(t, 2, stub.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	stub := &stubLifecycle{}
	runner := NewRunner(stub, "not a schedule", testLogger())

	err := runner.Start()
	require.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	stub := &stubLifecycle{}
	runner := NewRunner(stub, "@hourly", testLogger())

	require.NoError(t, runner.Start())
	runner.Stop()
}

var _ service.SubscriptionService = (*stubLifecycle)(nil)
