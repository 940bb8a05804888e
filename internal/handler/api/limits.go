package api

import (
	"errors"
	"net/http"

	"RateGate/internal/domain/models"
	"RateGate/internal/service/ratelimit"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// LimitsHandler exposes bucket status and an operator reset.
type LimitsHandler struct {
	registry *ratelimit.Registry
	logger   *applogger.Logger
}

func NewLimitsHandler(registry *ratelimit.Registry, logger *applogger.Logger) *LimitsHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &LimitsHandler{registry: registry, logger: logger}
}

// BucketView is a bucket status plus its one-line summary.
type BucketView struct {
	ratelimit.Status
	Summary string `json:"summary"`
}

func (h *LimitsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/limits")
	g.GET("", h.List)
	g.POST("/reset", h.Reset)
}

func (h *LimitsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// List reports every bucket, ordered by name.
func (h *LimitsHandler) List(c echo.Context) error {
	views := make([]BucketView, 0)
	for _, name := range h.registry.Names() {
		b, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		views = append(views, BucketView{Status: b.Snapshot(), Summary: b.String()})
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// Reset refills the named bucket, or all of them when no name is given.
func (h *LimitsHandler) Reset(c echo.Context) error {
	req := &models.ResetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Name == "" {
		h.registry.ResetAll()
		h.logger.Info("all buckets reset", applogger.String("remote", c.RealIP()))
		return xhttp.SuccessResponse(c, map[string]interface{}{"reset": h.registry.Names()})
	}

	if err := h.registry.Reset(req.Name); err != nil {
		if errors.Is(err, ratelimit.ErrUnknownBucket) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown bucket %q", req.Name).WithField("name"))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("bucket reset", applogger.String("bucket", req.Name), applogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, map[string]interface{}{"reset": []string{req.Name}})
}
