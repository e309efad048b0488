package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/matching"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
)

func main() {
	entityType := flag.String("entity-type", "", "Entity type to scan (customers, cars, invoices).")
	minConfidence := flag.Float64("min-confidence", 0, "Optional: only print candidates at or above this confidence.")
	limit := flag.Int("scan-limit", 0, "Optional: override DUPLICATE_SCAN_LIMIT for this scan.")
	flag.Parse()

	et := strings.TrimSpace(*entityType)
	if !utils.IsValidEntityType(et) {
		fmt.Fprintf(os.Stderr, "invalid --entity-type %q\n", et)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	detector := workflow.NewDuplicateDetector(db, config.GetLogger())
	if *limit > 0 {
		detector.ScanLimit = *limit
	}
	candidates, err := detector.DetectDuplicates(context.Background(), et)
	if err != nil {
		fmt.Fprintf(os.Stderr, "detect duplicates failed (%s): %v\n", utils.ErrorKindOf(err), err)
		os.Exit(1)
	}

	out := make([]matching.DuplicateCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.MatchConfidence >= *minConfidence {
			out = append(out, c)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
