package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
)

func main() {
	runIDs := flag.String("run-id", "", "Migration run id to reconcile (comma-separated for several runs).")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before reconciling.")
	readiness := flag.Bool("readiness", false, "Print the go-live readiness of each run after its pass.")
	redisTimeout := flag.Duration("redis-timeout", 10*time.Second, "How long to wait for redis before reconciling without the run lock.")
	flag.Parse()

	ids := utils.UniqueSlice(splitIDs(*runIDs))
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "--run-id is required")
		os.Exit(2)
	}

	ctx := context.Background()
	// Explicit DB connect (config does not connect in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
			os.Exit(1)
		}
	}

	// Same per-run lock as the HTTP route; without redis the passes run unlocked.
	redisCtx, cancelRedis := context.WithTimeout(ctx, *redisTimeout)
	config.ConnectRedisWithRetry(redisCtx)
	cancelRedis()
	locker := workflow.NewRunLocker(config.GetRedisLock, config.GetLogger(), workflow.DefaultRunLockTTL)

	runner := workflow.NewReconciliationRunner(db, config.GetLogger())
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, runID := range ids {
		release, err := locker.Obtain(ctx, runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s: skipped (%s): %v\n", runID, utils.ErrorKindOf(err), err)
			failed++
			continue
		}
		result, err := runner.RunReconciliation(ctx, runID)
		release()
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s: reconcile failed (%s): %v\n", runID, utils.ErrorKindOf(err), err)
			failed++
			continue
		}
		_ = enc.Encode(result)

		if *readiness {
			r, err := models.GetRunReadiness(ctx, db, runID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "run %s: readiness failed: %v\n", runID, err)
				failed++
				continue
			}
			_ = enc.Encode(r)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func splitIDs(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
