package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/fleet_backend/testutil"
	"github.com/mmdatafocus/fleet_backend/workflow"
)

func TestRunLockerWithoutRedisProceeds(t *testing.T) {
	for name, locker := range map[string]func() *redislock.Client{
		"no locker func":   nil,
		"redis not ready": func() *redislock.Client { return nil },
	} {
		t.Run(name, func(t *testing.T) {
			l := workflow.NewRunLocker(locker, testutil.Logger(t), time.Minute)
			release, err := l.Obtain(context.Background(), "mig-run-1")
			if err != nil {
				t.Fatalf("obtain: %v", err)
			}
			release()
		})
	}
}
