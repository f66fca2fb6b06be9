package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/mhartlev/lending-ledger-go/activity"
	"github.com/mhartlev/lending-ledger-go/catalog"
	"github.com/mhartlev/lending-ledger-go/ledger"
)

const timeFormat = time.RFC3339

// RentalEngine is the borrow/return surface the API exposes.
type RentalEngine interface {
	Borrow(ctx context.Context, itemID int64, borrowerID int64) (int64, error)
	Return(ctx context.Context, itemID int64, borrowerID int64) error
}

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	rental   RentalEngine
	catalog  *catalog.Service
	recorder *activity.Recorder
	logger   ledger.Logger
}

// Option defines a functional option for configuring the Handler.
type Option func(*Handler)

// WithLogger configures a logger for the handler. Without it the handler is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(handler *Handler) {
		handler.logger = logger
	}
}

// WithActivityRecorder configures the audit trail recorder. Without it no
// audit entries are written.
func WithActivityRecorder(recorder *activity.Recorder) Option {
	return func(handler *Handler) {
		handler.recorder = recorder
	}
}

// NewHandler creates the HTTP handler for the lending API.
func NewHandler(rentalEngine RentalEngine, catalogService *catalog.Service, options ...Option) *Handler {
	handler := &Handler{
		rental:  rentalEngine,
		catalog: catalogService,
	}

	for _, option := range options {
		option(handler)
	}

	return handler
}

// Router builds the route tree.
func (h *Handler) Router() chi.Router {
	router := chi.NewRouter()

	router.Use(requestID)
	router.Use(h.timing)

	router.Post("/rent", h.handleRent)
	router.Post("/return", h.handleReturn)

	router.Route("/items", func(r chi.Router) {
		r.Post("/", h.handleAddItem)
		r.Get("/search", h.handleSearch)
		r.Get("/{itemID}", h.handleGetItem)
		r.Get("/{itemID}/history", h.handleHistoryByItem)
	})

	router.Route("/borrowers", func(r chi.Router) {
		r.Post("/", h.handleAddBorrower)
		r.Get("/{borrowerID}/history", h.handleHistoryByBorrower)
	})

	router.Route("/stats", func(r chi.Router) {
		r.Get("/most-popular", h.handleMostPopular)
		r.Get("/least-popular", h.handleLeastPopular)
		r.Get("/most-overdue", h.handleMostOverdue)
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return router
}

func (h *Handler) auditInfo(ctx context.Context, message string, endpoint string, borrowerID *int64) {
	if h.recorder != nil {
		h.recorder.Info(ctx, message, endpoint, borrowerID)
	}
}

func (h *Handler) auditError(ctx context.Context, message string, endpoint string, borrowerID *int64) {
	if h.recorder != nil {
		h.recorder.Error(ctx, message, endpoint, borrowerID)
	}
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err.Error())
	}
}
