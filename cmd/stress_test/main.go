package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/storage"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/service"
	"github.com/cartel-codes/theme-nv-sub002/internal/port"
)

const (
	productID = "flash-sale-item"
	variantID = "black"
	queueSize = 1000
)

type store interface {
	port.InventoryRepository
	port.OrderRepository
}

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("STRESS_MYSQL_DSN"), "MySQL DSN; the in-memory store is used when empty")
		initialStock  = flag.Int("stock", 20, "initial stock of the contested record")
		totalRequests = flag.Int("orders", 50, "number of concurrent single-unit orders")
	)
	flag.Parse()

	ctx := context.Background()
	log := zap.NewNop()

	st, cleanup, err := openStore(*dsn, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	key := domain.StockKey{ProductID: productID, VariantID: variantID}
	inventoryService := service.NewInventoryService(st, service.WithLogger(log))
	orderService := service.NewOrderService(st, nil, queueSize, log)
	defer orderService.Close()

	if err := inventoryService.SetStock(ctx, key, *initialStock); err != nil {
		fmt.Fprintf(os.Stderr, "set stock: %v\n", err)
		os.Exit(1)
	}

	// Record every order first, then race the decrements.
	orderIDs := make([]string, 0, *totalRequests)
	for i := 0; i < *totalRequests; i++ {
		order, err := orderService.RecordPaidOrder(ctx, "", fmt.Sprintf("user-%d", i), []domain.OrderItem{
			{ProductID: productID, VariantID: variantID, Quantity: 1, UnitPrice: decimal.NewFromInt(999)},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "record order: %v\n", err)
			os.Exit(1)
		}
		<-orderService.GetDecrementQueue()
		orderIDs = append(orderIDs, order.ID)
	}

	var successCount, soldOutCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()

			err := inventoryService.DecrementStockForOrder(ctx, orderID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Orders:     %d\n", *totalRequests)
	fmt.Printf("Decremented:      %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(*initialStock, *totalRequests)
	failed := false
	if int(success) == expected && int(soldOut) == *totalRequests-expected {
		fmt.Printf("PASS: exactly %d orders decremented, %d sold out\n", expected, *totalRequests-expected)
	} else {
		fmt.Printf("FAIL: expected %d decremented/%d sold out, got %d/%d\n",
			expected, *totalRequests-expected, success, soldOut)
		failed = true
	}

	rec, err := inventoryService.GetStock(ctx, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read final stock: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final Stock:      %d\n", rec.Quantity)

	if rec.Quantity == *initialStock-expected {
		fmt.Printf("PASS: stock settled at %d\n", rec.Quantity)
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-expected, rec.Quantity)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}

func openStore(dsn string, log *zap.Logger) (store, func(), error) {
	if dsn == "" {
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := storage.RunMigrations(db, log); err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
}
