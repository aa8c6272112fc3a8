// Package execution places finalized orders on the exchange. The pipeline
// hands over a complete request and receives a result or an error tag; failed
// placements are never retried here.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OrderRequest is a finalized order with attached take-profit and stop-loss
type OrderRequest struct {
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"` // LONG or SHORT
	Quantity     float64 `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"` // 0 means market entry
	ProfitTarget float64 `json:"profit_target"`
	StopLoss     float64 `json:"stop_loss"`
}

// OrderResult reports the outcome of a placement
type OrderResult struct {
	Success     bool    `json:"success"`
	OrderID     string  `json:"order_id"`
	FilledPrice float64 `json:"filled_price"`
}

// Executor is the order-placement contract
type Executor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// DryRunExecutor simulates placements without touching the exchange
type DryRunExecutor struct {
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int
	placed []OrderRequest
}

// NewDryRunExecutor creates a simulated executor
func NewDryRunExecutor(logger zerolog.Logger) *DryRunExecutor {
	return &DryRunExecutor{logger: logger}
}

// PlaceOrder records the order and fills it at the requested entry price
func (e *DryRunExecutor) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.placed = append(e.placed, req)
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", req.Symbol).
		Str("direction", req.Direction).
		Float64("quantity", req.Quantity).
		Float64("tp", req.ProfitTarget).
		Float64("sl", req.StopLoss).
		Msg("dry-run order placed")

	return OrderResult{
		Success:     true,
		OrderID:     fmt.Sprintf("dryrun-%d-%d", time.Now().Unix(), id),
		FilledPrice: req.EntryPrice,
	}, nil
}

// PlacedOrders returns a copy of everything placed so far
func (e *DryRunExecutor) PlacedOrders() []OrderRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]OrderRequest, len(e.placed))
	copy(out, e.placed)
	return out
}
