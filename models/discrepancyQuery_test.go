package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/testutil"
	"github.com/mmdatafocus/fleet_backend/utils"
)

func TestListDiscrepanciesNoMatches(t *testing.T) {
	db := testutil.DB(t)
	testutil.SeedOpenDiscrepancies(t, db, 3, "cars", models.DiscrepancySeverityCritical, models.DiscrepancyTypeMissingInTarget)

	page, err := models.ListDiscrepancies(context.Background(), db, models.DiscrepancyFilter{
		EntityType: "allocations",
		Severity:   models.DiscrepancySeverityCritical,
		Status:     models.DiscrepancyStatusOpen,
	}, 1, 25)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 || page.Total != 0 || page.TotalPages != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListDiscrepanciesPagination(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedOpenDiscrepancies(t, db, 7, "cars", models.DiscrepancySeverityWarning, models.DiscrepancyTypeFieldMismatch)
	testutil.SeedOpenDiscrepancies(t, db, 2, "invoices", models.DiscrepancySeverityInfo, models.DiscrepancyTypeDuplicate)

	cases := []struct {
		page, pageSize int
		wantLen        int
		wantPages      int
	}{
		{1, 3, 3, 3},
		{3, 3, 3, 3},
		{4, 3, 0, 3},
		{1, 9, 9, 1},
		{1, 4, 4, 3},
		{3, 4, 1, 3},
	}
	for _, tc := range cases {
		page, err := models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{}, tc.page, tc.pageSize)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if page.Total != 9 || len(page.Data) != tc.wantLen || page.TotalPages != tc.wantPages {
			t.Fatalf("page %d/%d: got total=%d len=%d pages=%d", tc.page, tc.pageSize, page.Total, len(page.Data), page.TotalPages)
		}
		if len(page.Data) > page.PageSize {
			t.Fatalf("page holds more rows than page_size")
		}
	}

	page, err := models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{EntityType: "invoices"}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 || page.PageSize != models.DefaultPageSize || page.Total != 2 {
		t.Fatalf("unexpected defaults %+v", page)
	}
}

func TestListDiscrepanciesStatusFilter(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	open := testutil.SeedOpenDiscrepancies(t, db, 3, "customers", models.DiscrepancySeverityWarning, models.DiscrepancyTypeDuplicate)
	if err := models.MarkDiscrepancyResolved(db, open[0].ID, models.ResolutionTypeIgnore, nil, "actor", time.Now().UTC()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	openPage, err := models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{}, 1, 25)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	resolvedPage, err := models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{Status: "Resolved"}, 1, 25)
	if err != nil {
		t.Fatalf("list resolved: %v", err)
	}
	if openPage.Total != 2 || resolvedPage.Total != 1 || resolvedPage.Data[0].ID != open[0].ID {
		t.Fatalf("unexpected split open=%d resolved=%d", openPage.Total, resolvedPage.Total)
	}

	_, err = models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{Status: "closed"}, 1, 25)
	if !utils.IsErrorKind(err, utils.ErrorKindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for unknown status, got %v", err)
	}
	_, err = models.ListDiscrepancies(ctx, db, models.DiscrepancyFilter{Severity: "urgent"}, 1, 25)
	if !utils.IsErrorKind(err, utils.ErrorKindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for unknown severity, got %v", err)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{0, 25, 1},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{200, 7, 29},
	}
	for _, tc := range cases {
		if got := models.TotalPages(tc.total, tc.pageSize); got != tc.want {
			t.Fatalf("TotalPages(%d,%d)=%d want %d", tc.total, tc.pageSize, got, tc.want)
		}
	}
}
