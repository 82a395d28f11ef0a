package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkeval-service/internal/domain/parking"
	"parkeval-service/internal/navigation"
	"parkeval-service/internal/service"
)

type Handler struct {
	reviewService *service.ReviewService
	log           zerolog.Logger
}

func NewHandler(reviewService *service.ReviewService, log zerolog.Logger) *Handler {
	return &Handler{
		reviewService: reviewService,
		log:           log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Endpoints that leave labels and files untouched
	public := r.Group("/api/v1")
	{
		public.GET("/statuses", h.listStatuses)
		public.GET("/sessions", h.listSessions)
		public.GET("/sessions/:id", h.getSession)
		public.GET("/sessions/:id/frames", h.listFrames)
		public.GET("/sessions/:id/frames/:frame_id", h.getFrame)
		public.GET("/sessions/:id/report", h.getReport)
		public.GET("/sessions/:id/report/latest", h.getLatestReport)
		public.POST("/sessions/:id/navigate", h.navigate)
	}

	// Endpoints that change labels or files
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/sessions", h.createSession)
		protected.DELETE("/sessions/:id", h.closeSession)
		protected.PATCH("/sessions/:id/frames/:frame_id", h.updateLabels)
		protected.POST("/sessions/:id/auto-label", h.autoLabel)
		protected.POST("/sessions/:id/link-movement", h.linkMovement)
		protected.POST("/sessions/:id/labels/save", h.saveLabels)
		protected.POST("/sessions/:id/eval/save", h.saveEval)
	}
}

type statusInfo struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	Label   string `json:"label"`
}

func (h *Handler) listStatuses(c *gin.Context) {
	out := make([]statusInfo, 0, len(parking.Statuses()))
	for _, s := range parking.Statuses() {
		out = append(out, statusInfo{Ordinal: int(s), Name: s.String(), Label: s.Label()})
	}
	c.JSON(http.StatusOK, successResponse(out))
}

type createSessionRequest struct {
	Dir string `json:"dir" binding:"required"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	info, err := h.reviewService.LoadSession(c.Request.Context(), strings.TrimSpace(req.Dir))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(info))
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.reviewService.Sessions()))
}

func (h *Handler) getSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	info, err := h.reviewService.Session(id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(info))
}

func (h *Handler) closeSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.reviewService.CloseSession(id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listFrames(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	filter := navigation.Filter{
		Lot:    strings.TrimSpace(c.Query("lot")),
		Option: navigation.Option(strings.TrimSpace(c.Query("option"))),
	}
	if v := c.Query("hide_moving"); v != "" {
		hide, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid hide_moving"))
			return
		}
		filter.HideMoving = hide
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		st, err := parking.ParseStatus(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		filter.Status = &st
	}

	frames, applied, err := h.reviewService.Frames(id, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":           frames,
		"total":          len(frames),
		"filter_applied": applied,
	})
}

func (h *Handler) getFrame(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	frame, err := h.reviewService.Frame(id, c.Param("frame_id"), strings.TrimSpace(c.Query("lot")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(frame))
}

func (h *Handler) updateLabels(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var patch service.LabelPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, errorResponse("no label fields given"))
		return
	}

	frame, err := h.reviewService.UpdateLabels(id, c.Param("frame_id"), strings.TrimSpace(c.Query("lot")), patch)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Debug().
		Str("reviewer", c.GetString(reviewerKey)).
		Str("frame_id", frame.ID).
		Msg("frame relabeled")
	c.JSON(http.StatusOK, successResponse(frame))
}

func (h *Handler) autoLabel(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	n, err := h.reviewService.AutoLabel(id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"labeled": n}))
}

func (h *Handler) linkMovement(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	n, err := h.reviewService.LinkMovement(id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"linked": n}))
}

func (h *Handler) getReport(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	report, res, err := h.reviewService.Evaluate(id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{
		"rows":     report.Rows,
		"counters": res,
	}))
}

func (h *Handler) getLatestReport(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	report, err := h.reviewService.LatestReport(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) saveLabels(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	out, err := h.reviewService.SaveLabels(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(out))
}

func (h *Handler) saveEval(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	out, err := h.reviewService.SaveEval(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(out))
}

type navigateRequest struct {
	Filter *navigation.Filter `json:"filter"`
	Step   service.Step       `json:"step"`
	Seek   string             `json:"seek"`
}

func (h *Handler) navigate(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req navigateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}
	st, err := h.reviewService.Navigate(id, req.Filter, req.Step, req.Seek)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(st))
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
