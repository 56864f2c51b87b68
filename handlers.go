package main

import (
	"bytes"
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/history"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"bitbucket.org/mmdatafocus/coordinator_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// coordinatorService is the part of workflow.Coordinator the HTTP layer calls.
type coordinatorService interface {
	Create(ctx context.Context, req workflow.CreateRequest) ([]models.VersionedEntity, error)
	Fetch(ctx context.Context, oasysAssessmentPk string) ([]models.EntityView, error)
	ListAssociations(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error)
	Sign(ctx context.Context, oasysAssessmentPk string, req workflow.SignRequest) ([]models.VersionedEntity, error)
	CounterSign(ctx context.Context, oasysAssessmentPk string, req workflow.CounterSignRequest) ([]models.VersionedEntity, error)
	Lock(ctx context.Context, oasysAssessmentPk string, req workflow.LockRequest) ([]models.VersionedEntity, error)
	Rollback(ctx context.Context, oasysAssessmentPk string, req workflow.RollbackRequest) ([]models.VersionedEntity, error)
	SoftDelete(ctx context.Context, oasysAssessmentPk string, req workflow.SoftDeleteRequest) ([]models.VersionedEntity, error)
	Undelete(ctx context.Context, oasysAssessmentPk string, req workflow.UndeleteRequest) ([]models.VersionedEntity, error)
	Merge(ctx context.Context, req workflow.MergeRequest) ([]workflow.MergeResult, error)
	VersionHistory(ctx context.Context, oasysAssessmentPk string) ([]history.VersionsOnDate, error)
}

type recordResponse struct {
	EntityType    models.RecordType `json:"entityType"`
	RecordId      uuid.UUID         `json:"recordId"`
	RecordVersion int64             `json:"recordVersion"`
}

type recordsResponse struct {
	Records []recordResponse `json:"records"`
}

type errorResponse struct {
	UserMessage      string `json:"userMessage"`
	DeveloperMessage string `json:"developerMessage"`
}

type handlers struct {
	service coordinatorService
	logger  *logrus.Logger
	// exposeCauses puts the full cause chain in developerMessage; off in production.
	exposeCauses bool
}

func registerRoutes(r gin.IRouter, h *handlers) {
	oasys := r.Group("/oasys")
	oasys.POST("/create", h.create)
	oasys.POST("/merge", h.merge)
	oasys.GET("/:pk", h.fetch)
	oasys.GET("/:pk/associations", h.associations)
	oasys.GET("/:pk/versions", h.versionHistory)
	oasys.GET("/:pk/versions/export", h.exportVersionHistory)
	oasys.POST("/:pk/sign", h.sign)
	oasys.POST("/:pk/counter-sign", h.counterSign)
	oasys.POST("/:pk/lock", h.lock)
	oasys.POST("/:pk/rollback", h.rollback)
	oasys.POST("/:pk/soft-delete", h.softDelete)
	oasys.POST("/:pk/undelete", h.undelete)
}

func statusFor(err error) int {
	switch utils.KindOf(err) {
	case utils.FailureKindValidation:
		return http.StatusBadRequest
	case utils.FailureKindNotFound:
		return http.StatusNotFound
	case utils.FailureKindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	developerMessage := string(utils.KindOf(err)) + ": " + utils.UserMessage(err)
	if h.exposeCauses {
		developerMessage = err.Error()
	}
	if status >= http.StatusInternalServerError {
		config.LoggerWithContext(c.Request.Context(), h.logger).WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, errorResponse{UserMessage: utils.UserMessage(err), DeveloperMessage: developerMessage})
}

func (h *handlers) writeRecords(c *gin.Context, entities []models.VersionedEntity) {
	resp := recordsResponse{Records: make([]recordResponse, 0, len(entities))}
	for _, e := range entities {
		resp.Records = append(resp.Records, recordResponse{EntityType: e.EntityType, RecordId: e.ID, RecordVersion: e.Version})
	}
	c.JSON(http.StatusOK, resp)
}

// bind decodes and validates the body, and tags the context with the acting user.
func (h *handlers) bind(c *gin.Context, req any, user func() models.UserDetails) (context.Context, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		h.writeError(c, &utils.Failure{Kind: utils.FailureKindValidation, Message: "invalid request body", Cause: err})
		return nil, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.writeError(c, err)
		return nil, false
	}
	ctx := c.Request.Context()
	if u := user(); u.ID != "" {
		ctx = utils.SetUserIdInContext(ctx, u.ID)
		ctx = utils.SetUserNameInContext(ctx, u.Name)
	}
	return ctx, true
}

func (h *handlers) create(c *gin.Context) {
	var req workflow.CreateRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.Create(ctx, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) fetch(c *gin.Context) {
	views, err := h.service.Fetch(c.Request.Context(), c.Param("pk"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": views})
}

func (h *handlers) associations(c *gin.Context) {
	rows, err := h.service.ListAssociations(c.Request.Context(), c.Param("pk"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"associations": rows})
}

func (h *handlers) sign(c *gin.Context) {
	var req workflow.SignRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.Sign(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) counterSign(c *gin.Context) {
	var req workflow.CounterSignRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.CounterSign(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) lock(c *gin.Context) {
	var req workflow.LockRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.Lock(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) rollback(c *gin.Context) {
	var req workflow.RollbackRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.Rollback(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) softDelete(c *gin.Context) {
	var req workflow.SoftDeleteRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.SoftDelete(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) undelete(c *gin.Context) {
	var req workflow.UndeleteRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	entities, err := h.service.Undelete(ctx, c.Param("pk"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRecords(c, entities)
}

func (h *handlers) merge(c *gin.Context) {
	var req workflow.MergeRequest
	ctx, ok := h.bind(c, &req, func() models.UserDetails { return req.UserDetails })
	if !ok {
		return
	}
	results, err := h.service.Merge(ctx, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merged": results})
}

func (h *handlers) versionHistory(c *gin.Context) {
	buckets, err := h.service.VersionHistory(c.Request.Context(), c.Param("pk"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allVersions": buckets})
}

func (h *handlers) exportVersionHistory(c *gin.Context) {
	pk := c.Param("pk")
	buckets, err := h.service.VersionHistory(c.Request.Context(), pk)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := history.WriteWorkbook(&buf, pk, buckets); err != nil {
		h.writeError(c, utils.GenericFailure("failed to render version history", err))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=version-history-"+pk+".xlsx")
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{UserMessage: "route not found", DeveloperMessage: c.Request.Method + " " + c.Request.URL.Path})
}
