package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/enums"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/pagination"
)

// Service exposes read projections and the fulfilment status machine.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*StaffOrderView, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[StaffOrderView], error)
	ActiveForCustomer(ctx context.Context, customerID uuid.UUID) (*ActiveOrderView, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (*StaffOrderView, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*StaffOrderView, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapOrderLookup(err)
	}
	view := toStaffView(*order)
	return &view, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[StaffOrderView], error) {
	if filters.OrderStatus != nil && !filters.OrderStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	views := make([]StaffOrderView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toStaffView(row))
	}
	page := pagination.Trim(views, params.Limit, func(v StaffOrderView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

// ActiveForCustomer returns nil without error when nothing is in progress.
func (s *service) ActiveForCustomer(ctx context.Context, customerID uuid.UUID) (*ActiveOrderView, error) {
	order, err := s.repo.LatestActiveForCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active order")
	}
	return &ActiveOrderView{
		ID:          order.ID,
		OrderStatus: order.OrderStatus,
		StatusLabel: order.OrderStatus.Label(),
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	}, nil
}

// AdvanceStatus moves a paid order one step along its fulfilment path.
// Payment itself is only recorded by the payment webhook.
func (s *service) AdvanceStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (*StaffOrderView, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapOrderLookup(err)
	}

	from := order.OrderStatus
	details := map[string]any{"from": from, "to": to}
	if to == enums.OrderStatusPaid || !from.CanTransition(to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
			WithDetails(details)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
			WithDetails(details)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": id.String(),
		"from":     from,
		"to":       to,
	}), "order.status_advanced")
	return s.Get(ctx, id)
}

func mapOrderLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
