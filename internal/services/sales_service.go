package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

// SalesServiceDeps bundles collaborators required to construct the sales service.
type SalesServiceDeps struct {
	Orders   repositories.OrderRepository
	Location *time.Location
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type salesService struct {
	orders   repositories.OrderRepository
	location *time.Location
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewSalesService wires dependencies into a concrete SalesService implementation.
func NewSalesService(deps SalesServiceDeps) (SalesService, error) {
	if deps.Orders == nil {
		return nil, errors.New("sales service: order repository is required")
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &salesService{
		orders:   deps.Orders,
		location: location,
		clock:    clock,
		logger:   logger,
	}, nil
}

// SalesReport aggregates today's and the running month's figures in the
// restaurant's local timezone. Cancelled orders never count towards revenue.
func (s *salesService) SalesReport(ctx context.Context) (SalesStats, error) {
	now := s.clock().In(s.location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
	end := now.Add(time.Second)

	monthOrders, err := s.orders.ListBetween(ctx, monthStart.UTC(), end.UTC())
	if err != nil {
		return SalesStats{}, err
	}

	stats := SalesStats{}
	for _, order := range monthOrders {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		stats.Month.Orders++
		stats.Month.Revenue += order.Total
		if !order.CreatedAt.Before(dayStart.UTC()) {
			stats.Today.Orders++
			stats.Today.Revenue += order.Total
		}
	}

	byStatus, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return SalesStats{}, err
	}
	stats.ByStatus = make(map[domain.OrderStatus]int, len(byStatus))
	for status, count := range byStatus {
		if status == domain.OrderStatusCancelled {
			continue
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}

	s.logger(ctx, "sales.report.generated", map[string]any{
		"todayOrders": stats.Today.Orders,
		"monthOrders": stats.Month.Orders,
		"total":       stats.Total,
	})

	return stats, nil
}
