package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// BinanceExecutor places USDT-M futures market orders with attached
// take-profit and stop-loss orders
type BinanceExecutor struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewBinanceExecutor creates an executor against the given base URL
func NewBinanceExecutor(apiKey, secretKey, baseURL string, logger zerolog.Logger) *BinanceExecutor {
	return &BinanceExecutor{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type orderResponse struct {
	OrderID  int64  `json:"orderId"`
	Symbol   string `json:"symbol"`
	Status   string `json:"status"`
	AvgPrice string `json:"avgPrice"`
}

// PlaceOrder submits a market entry, then the TP and SL closing orders.
// Failures after the entry fills are logged and surfaced; nothing is retried.
func (e *BinanceExecutor) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	side, closeSide := "BUY", "SELL"
	if req.Direction == "SHORT" {
		side, closeSide = "SELL", "BUY"
	}

	qty := strconv.FormatFloat(req.Quantity, 'f', -1, 64)

	entry, err := e.postOrder(ctx, url.Values{
		"symbol":   {req.Symbol},
		"side":     {side},
		"type":     {"MARKET"},
		"quantity": {qty},
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("entry order failed: %w", err)
	}

	filledPrice, _ := strconv.ParseFloat(entry.AvgPrice, 64)

	// Attached exits: reduce-only closing orders at the target and stop
	if _, err := e.postOrder(ctx, url.Values{
		"symbol":     {req.Symbol},
		"side":       {closeSide},
		"type":       {"TAKE_PROFIT_MARKET"},
		"stopPrice":  {strconv.FormatFloat(req.ProfitTarget, 'f', -1, 64)},
		"quantity":   {qty},
		"reduceOnly": {"true"},
	}); err != nil {
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("take-profit placement failed after entry fill")
	}
	if _, err := e.postOrder(ctx, url.Values{
		"symbol":     {req.Symbol},
		"side":       {closeSide},
		"type":       {"STOP_MARKET"},
		"stopPrice":  {strconv.FormatFloat(req.StopLoss, 'f', -1, 64)},
		"quantity":   {qty},
		"reduceOnly": {"true"},
	}); err != nil {
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("stop-loss placement failed after entry fill")
	}

	return OrderResult{
		Success:     true,
		OrderID:     strconv.FormatInt(entry.OrderID, 10),
		FilledPrice: filledPrice,
	}, nil
}

func (e *BinanceExecutor) postOrder(ctx context.Context, params url.Values) (*orderResponse, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", e.sign(params.Encode()))

	endpoint := fmt.Sprintf("%s/fapi/v1/order", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building order request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading order response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed orderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}
	return &parsed, nil
}

func (e *BinanceExecutor) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
