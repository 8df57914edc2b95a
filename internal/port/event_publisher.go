package port

import (
	"context"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

type StockEventPublisher interface {
	// PublishStockDecremented announces the stock levels left after an order was applied
	PublishStockDecremented(ctx context.Context, orderID string, levels []domain.StockLevel) error

	// PublishStockDepleted announces a record that reached zero
	PublishStockDepleted(ctx context.Context, orderID string, level domain.StockLevel) error
}
