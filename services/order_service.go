package services

import (
	"context"
	"errors"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderResponse is a paginated order listing.
type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

// MetaData carries pagination info.
type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// OrderService serves order reads and the administrative status
// transitions that happen after payment.
type OrderService struct {
	orders repository.OrderRepository
	logger *zap.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(orders repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orders: orders, logger: logger}
}

// GetUserOrders retrieves paginated orders for a user.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, page, limit int) (*OrderResponse, *ServiceError) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Code: CodeInternal, Message: "Invalid user ID format"}
	}

	orders, total, err := s.orders.FindByUserID(ctx, userUUID, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to fetch orders"}
	}

	return &OrderResponse{
		Orders: orders,
		Meta:   buildMeta(page, limit, total),
	}, nil
}

// GetAllOrders retrieves paginated orders for all users (admin).
func (s *OrderService) GetAllOrders(ctx context.Context, page, limit int) (*OrderResponse, *ServiceError) {
	orders, total, err := s.orders.FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch all orders", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to fetch orders"}
	}

	return &OrderResponse{
		Orders: orders,
		Meta:   buildMeta(page, limit, total),
	}, nil
}

// GetOrderByID retrieves one order, scoped to its owner.
func (s *OrderService) GetOrderByID(ctx context.Context, userID string, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Order not found"}
		}
		s.logger.Error("Failed to fetch order", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to fetch order"}
	}

	if order.UserID.String() != userID {
		return nil, &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Order not found"}
	}
	return order, nil
}

// UpdateStatus applies an administrative transition
// (processing/shipped/delivered/cancelled). The paid transition is the
// verification service's alone and is rejected here.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, *ServiceError) {
	order, err := s.orders.UpdateStatus(ctx, orderID, next)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIllegalTransition):
			return nil, &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "Illegal status transition"}
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Order not found"}
		default:
			s.logger.Error("Failed to update order status", zap.String("order_id", orderID.String()), zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to update order"}
		}
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("status", string(next)),
	)
	return order, nil
}

func buildMeta(page, limit int, total int64) MetaData {
	return MetaData{
		Page:        page,
		Limit:       limit,
		TotalOrders: total,
		TotalPages:  calculateTotalPages(total, limit),
		HasMore:     total > int64(page*limit),
	}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
