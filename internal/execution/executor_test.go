package execution

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

// TestDryRunPlaceOrder checks simulated fills and order bookkeeping
func TestDryRunPlaceOrder(t *testing.T) {
	e := NewDryRunExecutor(zerolog.Nop())

	req := OrderRequest{
		Symbol:       "BTCUSDT",
		Direction:    "LONG",
		Quantity:     0.005,
		EntryPrice:   50_000,
		ProfitTarget: 51_000,
		StopLoss:     49_500,
	}

	res, err := e.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("dry-run placement reported failure")
	}
	if res.OrderID == "" {
		t.Error("dry-run placement returned no order id")
	}
	if res.FilledPrice != req.EntryPrice {
		t.Errorf("filled at %v, want the requested entry %v", res.FilledPrice, req.EntryPrice)
	}

	second, _ := e.PlaceOrder(context.Background(), req)
	if second.OrderID == res.OrderID {
		t.Error("order ids are not unique")
	}

	placed := e.PlacedOrders()
	if len(placed) != 2 {
		t.Fatalf("recorded %d orders, want 2", len(placed))
	}
	if placed[0] != req {
		t.Errorf("recorded order = %+v, want %+v", placed[0], req)
	}
}

// TestRequestSigning pins the HMAC-SHA256 request signature against a known
// vector from the exchange API documentation
func TestRequestSigning(t *testing.T) {
	e := NewBinanceExecutor(
		"vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		"NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
		"https://fapi.binance.com", zerolog.Nop())

	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := e.sign(query); got != want {
		t.Errorf("signature = %s, want %s", got, want)
	}
}
