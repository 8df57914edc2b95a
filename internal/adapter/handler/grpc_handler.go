package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/service"
)

type GRPCHandler struct {
	inventory *service.InventoryService
}

func NewGRPCHandler(inventory *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory}
}

func (h *GRPCHandler) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error) {
	lines := make([]domain.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.LineRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  int(it.Quantity),
		})
	}

	result, err := h.inventory.CheckAvailability(ctx, lines)
	if err != nil {
		return nil, grpcError(err)
	}

	return &CheckAvailabilityResponse{
		Available: result.Available,
		ProductID: result.ProductID,
		VariantID: result.VariantID,
		Message:   result.Message,
	}, nil
}

func (h *GRPCHandler) DecrementStockForOrder(ctx context.Context, req *DecrementStockRequest) (*DecrementStockResponse, error) {
	err := h.inventory.DecrementStockForOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			return &DecrementStockResponse{
				Success: false,
				Message: "sold out",
			}, nil
		}
		return nil, grpcError(err)
	}

	return &DecrementStockResponse{
		Success: true,
		Message: "stock decremented",
	}, nil
}

func (h *GRPCHandler) SetStock(ctx context.Context, req *SetStockRequest) (*SetStockResponse, error) {
	key := domain.StockKey{ProductID: req.ProductID, VariantID: req.VariantID}
	if err := h.inventory.SetStock(ctx, key, int(req.Quantity)); err != nil {
		return nil, grpcError(err)
	}
	return &SetStockResponse{Success: true}, nil
}

func grpcError(err error) error {
	var txErr *domain.TransactionError
	switch {
	case errors.Is(err, domain.ErrInvalidLine), errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &txErr):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
