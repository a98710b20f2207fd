// Package quote serves the pricing form: calculation, CSV export and
// submission of the current session's quote.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/engineroom-pricing/internal/common"
	"github.com/noah-isme/engineroom-pricing/internal/display"
	"github.com/noah-isme/engineroom-pricing/internal/export"
	"github.com/noah-isme/engineroom-pricing/internal/lock"
	"github.com/noah-isme/engineroom-pricing/internal/notify"
	"github.com/noah-isme/engineroom-pricing/internal/obs"
	"github.com/noah-isme/engineroom-pricing/internal/pricing"
	"github.com/noah-isme/engineroom-pricing/internal/resilience"
	"github.com/noah-isme/engineroom-pricing/internal/security"
	"github.com/noah-isme/engineroom-pricing/internal/session"
)

// SubmitGuard runs fn unless another submission for the same key is running.
type SubmitGuard interface {
	Try(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Handler exposes the quote endpoints.
type Handler struct {
	engine     *pricing.Engine
	store      session.Store
	cookies    session.Cookies
	submitter  notify.Submitter
	guard      SubmitGuard
	guardTTL   time.Duration
	csrf       *security.CSRF
	logger     zerolog.Logger
	validate   *validator.Validate
	minClients int
	maxClients int
	clearAfter time.Duration
	now        func() time.Time
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Engine     *pricing.Engine
	Store      session.Store
	Cookies    session.Cookies
	Submitter  notify.Submitter
	Guard      SubmitGuard
	GuardTTL   time.Duration
	CSRF       *security.CSRF
	Logger     zerolog.Logger
	MinClients int
	MaxClients int
	ClearAfter time.Duration
	Now        func() time.Time
}

// NewHandler constructs a Handler, filling unset limits with their defaults.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		engine:     cfg.Engine,
		store:      cfg.Store,
		cookies:    cfg.Cookies,
		submitter:  cfg.Submitter,
		guard:      cfg.Guard,
		guardTTL:   cfg.GuardTTL,
		csrf:       cfg.CSRF,
		logger:     cfg.Logger,
		validate:   newValidator(),
		minClients: cfg.MinClients,
		maxClients: cfg.MaxClients,
		clearAfter: cfg.ClearAfter,
		now:        cfg.Now,
	}
	if h.engine == nil {
		h.engine = pricing.NewEngine()
	}
	if h.store == nil {
		h.store = session.NewMemoryStore(24 * time.Hour)
	}
	if h.minClients <= 0 {
		h.minClients = 1
	}
	if h.maxClients < h.minClients {
		h.maxClients = 50
	}
	if h.clearAfter <= 0 {
		h.clearAfter = 3 * time.Second
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.guard == nil {
		h.guard = &lock.Local{}
	}
	if h.guardTTL <= 0 {
		h.guardTTL = time.Minute
	}
	return h
}

type quoteView struct {
	Quote   *pricing.Result `json:"quote"`
	Display *display.Table  `json:"display"`
}

// Tiers handles GET /api/v1/tiers.
func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{
		"data":    h.engine.Catalog.All(),
		"display": display.TierCards(h.engine.Catalog),
	})
}

// Calculate handles POST /api/v1/quotes. A successful calculation replaces
// the session's current quote; a failed one leaves it untouched.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("quote").Start(r.Context(), "quote.Calculate")
	defer span.End()
	logger := obs.WithRequest(ctx, h.logger)

	req, err := h.decodeCalculate(r)
	if err != nil {
		obs.RecordCalculation("bad_request", 0)
		h.writeError(w, err)
		return
	}
	res, err := h.engine.Calculate(req)
	if err != nil {
		obs.RecordCalculation(calculationOutcome(err), 0)
		span.SetStatus(codes.Error, err.Error())
		logger.Info().Err(err).Msg("quote_rejected")
		h.writeError(w, err)
		return
	}

	id := h.cookies.Ensure(w, r)
	if err := h.store.Save(ctx, id, res); err != nil {
		obs.RecordCalculation("store_error", len(res.Clients))
		logger.Error().Err(err).Msg("save quote")
		h.writeError(w, common.NewAppError("INTERNAL", "could not keep the quote", http.StatusInternalServerError, err))
		return
	}

	obs.RecordCalculation("ok", len(res.Clients))
	span.SetAttributes(
		attribute.Int("quote.clients", len(res.Clients)),
		attribute.Float64("quote.grand_total", res.Totals.GrandTotal),
	)
	logger.Info().
		Str("company", res.CompanyName).
		Int("clients", len(res.Clients)).
		Float64("grand_total", res.Totals.GrandTotal).
		Msg("quote_calculated")

	common.JSON(w, http.StatusOK, map[string]any{
		"data":   quoteView{Quote: res, Display: display.ResultTable(res)},
		"status": newStatus(MsgCalculated, StatusSuccess, h.clearAfter),
	})
}

// Current handles GET /api/v1/quotes/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	_, res, err := h.current(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":   quoteView{Quote: res, Display: display.ResultTable(res)},
		"status": Status{Type: StatusSuccess},
	})
}

// ExportCSV handles GET /api/v1/quotes/current/csv. The status travels in
// X-Status-* headers since the body is the file itself.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	_, res, err := h.current(r)
	if err != nil {
		obs.RecordExport("no_result")
		h.writeError(w, err)
		return
	}
	doc, err := export.ToCSV(res)
	if err != nil {
		obs.RecordExport("error")
		h.writeError(w, err)
		return
	}
	obs.RecordExport("ok")
	logger := obs.WithRequest(r.Context(), h.logger)
	logger.Info().
		Str("company", res.CompanyName).
		Int("rows", len(res.Clients)).
		Msg("quote_exported")

	headers := w.Header()
	headers.Set("Content-Type", export.ContentType)
	headers.Set("Content-Disposition", `attachment; filename="`+export.Filename(res.CompanyName)+`"`)
	headers.Set("X-Status-Text", MsgExported)
	headers.Set("X-Status-Type", StatusSuccess)
	headers.Set("X-Status-Clear-After-Ms", strconv.FormatInt(h.clearAfter.Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Submit handles POST /api/v1/quotes/current/submit. The stored quote is
// read only; a failed submission can be repeated.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("quote").Start(r.Context(), "quote.Submit")
	defer span.End()
	logger := obs.WithRequest(ctx, h.logger)

	id, res, err := h.current(r.WithContext(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.submitter == nil {
		h.writeError(w, notify.ErrNotConfigured)
		return
	}

	var ack notify.Ack
	err = h.guard.Try(ctx, "submit:"+id, h.guardTTL, func(ctx context.Context) error {
		var submitErr error
		ack, submitErr = h.submitter.Submit(ctx, notify.NewPayload(res, h.now()))
		return submitErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).
			Str("company", res.CompanyName).
			Msg("quote_submission_failed")
		h.writeError(w, err)
		return
	}

	logger.Info().
		Str("company", res.CompanyName).
		Str("submission_id", ack.SubmissionID).
		Int("webhook_status", ack.StatusCode).
		Msg("quote_submitted")
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"submissionId": ack.SubmissionID,
			"statusCode":   ack.StatusCode,
		},
		"status": newStatus(MsgSubmitted, StatusSuccess, h.clearAfter),
	})
}

func (h *Handler) current(r *http.Request) (string, *pricing.Result, error) {
	id, ok := h.cookies.ID(r)
	if !ok {
		return "", nil, export.ErrNoResult
	}
	res, err := h.store.Current(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		return id, nil, export.ErrNoResult
	}
	return id, res, err
}

func calculationOutcome(err error) string {
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, pricing.ErrUnknownTier):
		return "unknown_tier"
	default:
		return "error"
	}
}

// toAppError maps domain errors onto HTTP responses.
func toAppError(err error) *common.AppError {
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	var (
		verr    *pricing.ValidationError
		tierErr *pricing.UnknownTierError
		subErr  *notify.SubmissionError
	)
	switch {
	case errors.Is(err, lock.ErrHeld):
		return &common.AppError{Code: "SUBMISSION_IN_PROGRESS", Message: MsgInProgress, HTTPStatus: http.StatusConflict, Err: err}
	case errors.As(err, &verr):
		return &common.AppError{Code: "VALIDATION_FAILED", Message: verr.Message(), HTTPStatus: http.StatusUnprocessableEntity, Err: err, Details: verr}
	case errors.As(err, &tierErr):
		return &common.AppError{
			Code:       "UNKNOWN_TIER",
			Message:    fmt.Sprintf("Unknown pricing tier %q", tierErr.ID),
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
			Details:    map[string]any{"index": tierErr.Index, "tier": tierErr.ID},
		}
	case errors.Is(err, pricing.ErrUnknownTier):
		return &common.AppError{Code: "UNKNOWN_TIER", Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.Is(err, export.ErrNoResult):
		return &common.AppError{Code: "NO_RESULT", Message: MsgNoResult, HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, notify.ErrNotConfigured):
		return &common.AppError{Code: "SUBMISSION_UNAVAILABLE", Message: MsgNotConfigured, HTTPStatus: http.StatusServiceUnavailable, Err: err}
	case errors.Is(err, resilience.ErrOpenCircuit):
		return &common.AppError{Code: "SUBMISSION_UNAVAILABLE", Message: MsgSubmitFailed + "automation temporarily unavailable", HTTPStatus: http.StatusServiceUnavailable, Err: err}
	case errors.As(err, &subErr):
		details := map[string]any{}
		if subErr.StatusCode > 0 {
			details["webhookStatus"] = subErr.StatusCode
		}
		return &common.AppError{Code: "SUBMISSION_FAILED", Message: MsgSubmitFailed + subErr.Error(), HTTPStatus: http.StatusBadGateway, Err: err, Details: details}
	default:
		return &common.AppError{Code: "INTERNAL", Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	common.JSONFailure(w, appErr.Status(), appErr.Body(), h.clearAfter)
}
