package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/middlewares"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const exportRowLimit = 10000

type reconciliationHandler struct {
	db       *gorm.DB
	logger   *logrus.Logger
	resolver *workflow.DiscrepancyResolver
	runner   *workflow.ReconciliationRunner
	detector *workflow.DuplicateDetector
	runLock  *workflow.RunLocker
}

func newReconciliationHandler(db *gorm.DB, logger *logrus.Logger) *reconciliationHandler {
	return &reconciliationHandler{
		db:       db,
		logger:   logger,
		resolver: workflow.NewDiscrepancyResolver(db, logger, workflow.NewTransitionLogger(db)),
		runner:   workflow.NewReconciliationRunner(db, logger),
		detector: workflow.NewDuplicateDetector(db, logger),
		runLock:  workflow.NewRunLocker(config.GetRedisLock, logger, workflow.DefaultRunLockTTL),
	}
}

func registerReconciliationRoutes(r gin.IRouter, h *reconciliationHandler) {
	g := r.Group("/internal/reconciliation")
	g.GET("/dashboard", h.getDashboard)
	g.GET("/discrepancies", h.listDiscrepancies)
	g.GET("/discrepancies/export", h.exportDiscrepancies)
	g.GET("/discrepancies/:id", h.getDiscrepancy)
	g.GET("/duplicates/:entity_type", h.detectDuplicates)
	g.GET("/runs/:run_id/readiness", h.getRunReadiness)

	mutating := g.Group("", middlewares.RequireActor())
	mutating.POST("/discrepancies/:id/resolve", h.resolveDiscrepancy)
	mutating.POST("/discrepancies/bulk-resolve", h.bulkResolveDiscrepancies)
	mutating.POST("/duplicates/promote", h.promoteDuplicate)
	mutating.POST("/runs/:run_id/reconcile", h.runReconciliation)
}

func httpStatusOf(err error) int {
	switch utils.ErrorKindOf(err) {
	case utils.ErrorKindNotFound:
		return http.StatusNotFound
	case utils.ErrorKindAlreadyResolved, utils.ErrorKindInvalidState:
		return http.StatusConflict
	case utils.ErrorKindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError hides storage causes from the caller; they are logged instead.
func respondError(c *gin.Context, err error) {
	kind := utils.ErrorKindOf(err)
	message := err.Error()
	if kind == utils.ErrorKindStorage {
		_ = c.Error(err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(httpStatusOf(err), gin.H{"error": message, "code": kind})
}

func actorOf(c *gin.Context) string {
	actorId, _ := utils.GetActorIdFromContext(c.Request.Context())
	return actorId
}

func (h *reconciliationHandler) getDashboard(c *gin.Context) {
	dashboard, err := models.GetDiscrepancyDashboard(c.Request.Context(), h.db)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

type listDiscrepanciesQuery struct {
	models.DiscrepancyFilter
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

type runSummary struct {
	EntityType string                    `json:"entity_type"`
	Status     models.MigrationRunStatus `json:"status"`
}

type discrepancyRow struct {
	*models.Discrepancy
	Run *runSummary `json:"run,omitempty"`
}

type discrepancyListResponse struct {
	Data       []discrepancyRow `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

func (h *reconciliationHandler) listDiscrepancies(c *gin.Context) {
	var q listDiscrepanciesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, utils.NewInvalidArgumentError("invalid query: %s", err.Error()))
		return
	}
	if q.EntityType != "" && !utils.IsValidEntityType(q.EntityType) {
		respondError(c, utils.NewInvalidArgumentError("invalid entity_type %q", q.EntityType))
		return
	}
	ctx := c.Request.Context()
	page, err := models.ListDiscrepancies(ctx, h.db, q.DiscrepancyFilter, q.Page, q.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	runIds := make([]string, 0, len(page.Data))
	for _, d := range page.Data {
		if d.RunId != nil {
			runIds = append(runIds, *d.RunId)
		}
	}
	runs := make(map[string]*runSummary)
	if len(runIds) > 0 {
		runIds = utils.UniqueSlice(runIds)
		loaded, errs := middlewares.GetMigrationRuns(ctx, runIds)
		for i, run := range loaded {
			if i < len(errs) && errs[i] != nil {
				h.logger.WithFields(logrus.Fields{
					"field":  "listDiscrepancies",
					"run_id": runIds[i],
				}).Warn("run summary not loaded: " + errs[i].Error())
				continue
			}
			if run != nil {
				runs[run.ID] = &runSummary{EntityType: run.EntityType, Status: run.Status}
			}
		}
	}

	rows := make([]discrepancyRow, len(page.Data))
	for i, d := range page.Data {
		rows[i] = discrepancyRow{Discrepancy: d}
		if d.RunId != nil {
			rows[i].Run = runs[*d.RunId]
		}
	}
	c.JSON(http.StatusOK, discrepancyListResponse{
		Data:       rows,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	})
}

func (h *reconciliationHandler) getDiscrepancy(c *gin.Context) {
	d, err := models.GetDiscrepancy(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

var exportHeadings = []string{
	"ID", "RunId", "EntityType", "EntityId", "DiscrepancyType", "Severity", "FieldName",
	"SourceValue", "TargetValue", "DetectionPass", "Status", "ResolvedBy", "ResolvedAt", "CreatedAt",
}

func (h *reconciliationHandler) exportDiscrepancies(c *gin.Context) {
	var filter models.DiscrepancyFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, utils.NewInvalidArgumentError("invalid query: %s", err.Error()))
		return
	}
	items, err := models.FindDiscrepancies(c.Request.Context(), h.db, filter, exportRowLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	f, err := discrepancyWorkbook(items)
	if err != nil {
		config.LogError(h.logger, "reconciliationHandlers.go", "exportDiscrepancies", "building workbook", len(items), err)
		respondError(c, utils.NewStorageError(err))
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=discrepancies.xlsx")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(h.logger, "reconciliationHandlers.go", "exportDiscrepancies", "writing workbook", nil, err)
	}
}

func discrepancyWorkbook(items []*models.Discrepancy) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"

	for i, heading := range exportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, heading); err != nil {
			return nil, err
		}
	}
	for i, d := range items {
		var resolvedAt string
		if d.ResolvedAt != nil {
			resolvedAt = d.ResolvedAt.UTC().Format(time.RFC3339)
		}
		values := []interface{}{
			d.ID,
			utils.DereferencePtr(d.RunId),
			d.EntityType,
			d.EntityId,
			string(d.DiscrepancyType),
			string(d.Severity),
			utils.DereferencePtr(d.FieldName),
			utils.DereferencePtr(d.SourceValue),
			utils.DereferencePtr(d.TargetValue),
			d.DetectionPass,
			string(d.Status()),
			utils.DereferencePtr(d.ResolvedBy),
			resolvedAt,
			d.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (h *reconciliationHandler) resolveDiscrepancy(c *gin.Context) {
	var input workflow.ResolutionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, utils.NewInvalidArgumentError("invalid request: %s", err.Error()))
		return
	}
	d, err := h.resolver.ResolveDiscrepancy(c.Request.Context(), c.Param("id"), input, actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *reconciliationHandler) bulkResolveDiscrepancies(c *gin.Context) {
	var input workflow.BulkResolutionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, utils.NewInvalidArgumentError("invalid request: %s", err.Error()))
		return
	}
	result, err := h.resolver.BulkResolveDiscrepancies(c.Request.Context(), input.Ids, input.ResolutionInput, actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *reconciliationHandler) detectDuplicates(c *gin.Context) {
	entityType := strings.TrimSpace(c.Param("entity_type"))
	if !utils.IsValidEntityType(entityType) {
		respondError(c, utils.NewInvalidArgumentError("invalid entity_type %q", entityType))
		return
	}
	candidates, err := h.detector.DetectDuplicates(c.Request.Context(), entityType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity_type": entityType, "data": candidates})
}

func (h *reconciliationHandler) promoteDuplicate(c *gin.Context) {
	var input workflow.PromoteCandidateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, utils.NewInvalidArgumentError("invalid request: %s", err.Error()))
		return
	}
	if !utils.IsValidEntityType(input.EntityType) {
		respondError(c, utils.NewInvalidArgumentError("invalid entity_type %q", input.EntityType))
		return
	}
	d, err := h.detector.PromoteDuplicateCandidate(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *reconciliationHandler) runReconciliation(c *gin.Context) {
	ctx := c.Request.Context()
	runId := strings.TrimSpace(c.Param("run_id"))
	if runId == "" {
		respondError(c, utils.NewInvalidArgumentError("run id is required"))
		return
	}
	release, err := h.runLock.Obtain(ctx, runId)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	result, err := h.runner.RunReconciliation(ctx, runId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *reconciliationHandler) getRunReadiness(c *gin.Context) {
	readiness, err := models.GetRunReadiness(c.Request.Context(), h.db, c.Param("run_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, readiness)
}
