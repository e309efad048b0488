package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
)

// RunLocker keeps two reconciliation passes of the same run from overlapping.
// Redis is best-effort here: when it is unavailable the pass proceeds unlocked.
type RunLocker struct {
	locker func() *redislock.Client
	logger *logrus.Logger
	ttl    time.Duration
}

const DefaultRunLockTTL = 10 * time.Minute

func NewRunLocker(locker func() *redislock.Client, logger *logrus.Logger, ttl time.Duration) *RunLocker {
	return &RunLocker{locker: locker, logger: logger, ttl: ttl}
}

func runLockKey(runId string) string {
	return fmt.Sprintf("reconcileLock:%s", runId)
}

// Obtain returns a release func that is always safe to call. A lock held by another
// pass is reported as InvalidState.
func (l *RunLocker) Obtain(ctx context.Context, runId string) (func(), error) {
	noop := func() {}
	var client *redislock.Client
	if l.locker != nil {
		client = l.locker()
	}
	if client == nil {
		config.LogWarning(l.logger, "runLock.go", "Obtain", "redis lock not ready; proceeding without redis lock", runId)
		return noop, nil
	}

	lock, err := client.Obtain(ctx, runLockKey(runId), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, utils.NewInvalidStateError("reconciliation already running for run %s", runId)
	} else if err != nil {
		l.logger.WithFields(logrus.Fields{
			"field":  "RunLocker.Obtain",
			"run_id": runId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return noop, nil
	}

	return func() {
		// The request context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := lock.Release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			l.logger.WithFields(logrus.Fields{
				"field":  "RunLocker.Release",
				"run_id": runId,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}, nil
}
