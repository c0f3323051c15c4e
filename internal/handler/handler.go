// Package handler implements the HTTP API on top of the order and report
// services.
package handler

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/report"
)

// OrderService is the order use case surface consumed by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	GetOrder(ctx context.Context, ref string) (*order.Order, error)
	ListOrders(ctx context.Context, f order.Filter, page, limit int) (*order.Page, error)
	UpdateOrderStatus(ctx context.Context, ref string, upd order.StatusUpdate) (*order.Order, error)
	ProcessRefund(ctx context.Context, ref string, req order.RefundRequest) (*order.Order, error)
	GetOrderStats(ctx context.Context, name period.Name) (*order.Stats, error)
	GetTodaySummary(ctx context.Context) (*order.TodaySummary, error)
}

// ReportService generates reports.
type ReportService interface {
	Generate(ctx context.Context, kind report.Kind, p report.Params) (*report.Result, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Location interprets date-only query parameters. Defaults to UTC.
	Location *time.Location
}

// Handler serves the order and report endpoints.
type Handler struct {
	orders   OrderService
	reports  ReportService
	validate *validator.Validate
	loc      *time.Location
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, orders OrderService, reports ReportService) *Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		orders:   orders,
		reports:  reports,
		validate: validate,
		loc:      loc,
	}
}

// Register mounts the API routes on r. Authentication is applied by the
// caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/stats", h.GetOrderStats)
		r.Get("/today", h.GetTodaySummary)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
		r.Post("/{id}/refund", h.ProcessRefund)
	})
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/{kind}", h.GenerateReport)
		r.Get("/{kind}/export", h.ExportReport)
	})
}
