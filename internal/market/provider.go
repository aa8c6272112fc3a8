package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Provider supplies candle data for the signal pipeline. Implementations must
// return candles oldest-first with strictly increasing open times, and an
// empty slice (not an error) when no data exists for the symbol.
type Provider interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// BinanceProvider fetches USDT-M futures market data from the Binance REST API
type BinanceProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceProvider creates a provider against the given base URL
// (e.g. https://fapi.binance.com, or the testnet URL)
func NewBinanceProvider(baseURL string) *BinanceProvider {
	return &BinanceProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetCandles fetches candlestick data for a symbol
func (p *BinanceProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/fapi/v1/klines?%s", p.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building klines request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading klines response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Binance returns klines as arrays of mixed types
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		candle, err := parseKline(k)
		if err != nil {
			return nil, &UpstreamDataError{Symbol: symbol, Reason: err.Error()}
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetPrice fetches the current mark price for a symbol
func (p *BinanceProvider) GetPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", p.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("error building price request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("price request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, &UpstreamDataError{Symbol: symbol, Reason: fmt.Sprintf("unparseable price %q", ticker.Price)}
	}

	return price, nil
}

func parseKline(k []interface{}) (Candle, error) {
	openTime, ok := k[0].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("invalid open time %v", k[0])
	}
	closeTime, ok := k[6].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("invalid close time %v", k[6])
	}

	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := k[i].(string)
		if !ok {
			return Candle{}, fmt.Errorf("invalid kline field %v", k[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("unparseable kline field %q", s)
		}
		fields[i-1] = v
	}

	return Candle{
		OpenTime:  int64(openTime),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		CloseTime: int64(closeTime),
	}, nil
}
