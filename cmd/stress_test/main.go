package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	workerCount   = 10
)

func main() {
	ctx := context.Background()

	// MYSQL_DSN selects the MySQL store; otherwise the run stays in memory.
	var uow port.UnitOfWork
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(totalRequests)

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		uow = adapter
	} else {
		uow = storage.NewMemoryStore()
	}

	logger := zap.NewNop()
	tracer := noop.NewTracerProvider().Tracer("stress")
	factory := service.NewLineItemFactory(uow, nil, logger, tracer)
	reversal := service.NewStockReversal(uow, logger, tracer)
	orderService := service.NewOrderService(uow, factory, reversal, nil, nil, logger, tracer)

	product := &domain.Product{
		Name:           "stress-item",
		SKU:            "STRESS-1",
		Price:          decimal.NewFromInt(1000),
		TrackInventory: true,
		Stock:          initialStock,
	}
	if err := uow.Products().Create(ctx, product); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	defer uow.Products().Delete(ctx, product.ID)

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	var (
		mu       sync.Mutex
		orderIDs []string
	)

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		log.Fatalf("failed to create worker pool: %v", err)
	}
	defer pool.Release()

	// Submit concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		userID := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			order, err := orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
				UserID: fmt.Sprintf("user-%d", userID),
				Items:  []service.ItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
				mu.Lock()
				orderIDs = append(orderIDs, order.ID)
				mu.Unlock()
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("user-%d: unexpected error: %v", userID, err)
			}
		})
		if err != nil {
			wg.Done()
			log.Fatalf("failed to submit request: %v", err)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", soldOut)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	checkStock(ctx, uow, product.ID, 0)

	// Cancel every order concurrently; stock must come back exactly once per order.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount)
	for _, id := range orderIDs {
		orderID := id
		g.Go(func() error {
			_, err := orderService.CancelOrder(gctx, orderID, "stress test")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("FAIL: cancel failed: %v\n", err)
	}

	checkStock(ctx, uow, product.ID, initialStock)
}

func checkStock(ctx context.Context, uow port.UnitOfWork, productID string, want int) {
	p, err := uow.Products().FindByID(ctx, productID)
	if err != nil || p == nil {
		fmt.Printf("FAIL: could not reload product: %v\n", err)
		return
	}
	fmt.Printf("Final Stock:      %d\n", p.Stock)

	if p.Stock == want {
		fmt.Printf("PASS: Stock is %d\n", want)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", want, p.Stock)
	}
}
