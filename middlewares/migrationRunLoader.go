package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/fleet_backend/models"
	"gorm.io/gorm"
)

type migrationRunReader struct {
	db *gorm.DB
}

// getMigrationRuns answers in key order; unknown ids load as nil without an error.
func (r *migrationRunReader) getMigrationRuns(ctx context.Context, ids []string) []*dataloader.Result[*models.MigrationRun] {
	runs, err := models.GetMigrationRunsByIds(ctx, r.db, ids)
	if err != nil {
		return handleError[*models.MigrationRun](len(ids), err)
	}

	resultMap := make(map[string]*models.MigrationRun, len(runs))
	for _, run := range runs {
		resultMap[run.ID] = run
	}
	loaderResults := make([]*dataloader.Result[*models.MigrationRun], 0, len(ids))
	for _, id := range ids {
		loaderResults = append(loaderResults, &dataloader.Result[*models.MigrationRun]{Data: resultMap[id]})
	}
	return loaderResults
}

func GetMigrationRun(ctx context.Context, id string) (*models.MigrationRun, error) {
	loaders := For(ctx)
	return loaders.migrationRunLoader.Load(ctx, id)()
}

func GetMigrationRuns(ctx context.Context, ids []string) ([]*models.MigrationRun, []error) {
	loaders := For(ctx)
	return loaders.migrationRunLoader.LoadMany(ctx, ids)()
}
