package api

import (
	"errors"
	"strconv"

	"RateGate/internal/domain/models"
	"RateGate/internal/middleware"
	"RateGate/internal/usecase"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Bucket names used by the quote routes.
const (
	QuoteBucket     = "quote"
	QuoteWaitBucket = "quote-wait"
)

// MaxBatchSymbols caps the symbols accepted by one batch call.
const MaxBatchSymbols = 20

// QuoteHandler serves upstream quotes behind the rate limiters.
type QuoteHandler struct {
	uc       *usecase.QuoteUseCase
	limiters *middleware.Limiters
	logger   *applogger.Logger
}

func NewQuoteHandler(uc *usecase.QuoteUseCase, limiters *middleware.Limiters, logger *applogger.Logger) *QuoteHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &QuoteHandler{uc: uc, limiters: limiters, logger: logger}
}

func (h *QuoteHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/quote", h.Quote, h.limiters.For(QuoteBucket, nil)...)
	g.GET("/quote/wait", h.Quote, h.limiters.For(QuoteWaitBucket, nil)...)
	g.GET("/quotes", h.Quotes, h.limiters.For(QuoteBucket, batchCost)...)
}

// Quote returns one quote. Reject or wait behavior comes from the route's bucket.
func (h *QuoteHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.GetQuote(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Warn("quote failed", applogger.String("symbol", req.Symbol), applogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Quotes returns several quotes; each symbol costs one token.
func (h *QuoteHandler) Quotes(c echo.Context) error {
	req := &models.BatchQuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := usecase.SplitSymbols(req.Symbols)
	if len(symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbols required").WithField("symbols"))
	}
	if len(symbols) > MaxBatchSymbols {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("at most %d symbols per call", MaxBatchSymbols).
			WithField("symbols").
			WithParam("max", MaxBatchSymbols))
	}

	res, err := h.uc.GetQuotes(c.Request().Context(), symbols)
	if err != nil {
		h.logger.Warn("batch quote failed", applogger.Strings("symbols", symbols), applogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// errorResponse mirrors a retry hint carried by the error into Retry-After.
func errorResponse(c echo.Context, err error) error {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		if v, ok := appErr.Params["retry_after_seconds"].(int64); ok && v > 0 {
			c.Response().Header().Set(xhttp.HeaderRetryAfter, strconv.FormatInt(v, 10))
		}
	}
	return xhttp.AppErrorResponse(c, err)
}

func batchCost(c echo.Context) int64 {
	n := int64(len(usecase.SplitSymbols(c.QueryParam("symbols"))))
	if n < 1 {
		return 1
	}
	return n
}
