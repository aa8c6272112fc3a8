package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrSizingInfeasible means no valid position size exists for the signal:
// the exchange minimum cannot be met within the available balance, or the
// floored quantity collapses to zero. The signal is dropped, never retried.
var ErrSizingInfeasible = errors.New("position sizing infeasible")

// Config holds risk management configuration. One coherent exchange policy:
// $5 minimum notional and 20x leverage everywhere.
type Config struct {
	Leverage         float64 // applied to position value for order quantity
	MinNotional      float64 // exchange minimum order value in quote currency
	QuantityStep     float64 // minimum tradable quantity increment
	MaxOpenPositions int     // maximum concurrent positions
	MaxDailyDrawdown float64 // max daily loss percentage before stopping
}

// DefaultConfig returns the standard risk policy
func DefaultConfig() Config {
	return Config{
		Leverage:         20,
		MinNotional:      5,
		QuantityStep:     0.001,
		MaxOpenPositions: 5,
		MaxDailyDrawdown: 10,
	}
}

// Sizing is the result of position sizing for one signal
type Sizing struct {
	PositionValue float64 // quote currency committed from the balance
	Notional      float64 // leveraged order value
	Quantity      float64 // final order quantity, floored to the step size
}

// Manager handles position sizing, balance tracking and daily loss limits
type Manager struct {
	config Config
	logger zerolog.Logger

	mu             sync.RWMutex
	accountBalance float64
	openPositions  int
	tradesToday    int
	dailyPnL       float64
	dailyPnLReset  time.Time
}

// NewManager creates a risk manager
func NewManager(config Config, logger zerolog.Logger) *Manager {
	return &Manager{
		config:        config,
		logger:        logger,
		dailyPnLReset: time.Now().Truncate(24 * time.Hour),
	}
}

// UpdateAccountBalance updates the current account balance
func (m *Manager) UpdateAccountBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountBalance = balance
}

// AccountBalance returns the current account balance
func (m *Manager) AccountBalance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountBalance
}

// CanOpenPosition checks position count and daily drawdown limits
func (m *Manager) CanOpenPosition() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openPositions >= m.config.MaxOpenPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", m.openPositions, m.config.MaxOpenPositions)
	}

	m.checkDailyReset()
	if m.accountBalance > 0 {
		drawdownPct := (m.dailyPnL / m.accountBalance) * 100
		if drawdownPct <= -m.config.MaxDailyDrawdown {
			return false, fmt.Sprintf("daily drawdown limit reached (%.2f%%)", drawdownPct)
		}
	}

	return true, ""
}

// Size computes the position size for a signal: a percentage of balance,
// raised to the exchange minimum notional if necessary but never beyond the
// available balance, converted to quantity at the current price and floored
// to the quantity step.
func (m *Manager) Size(sizePercent, currentPrice float64) (Sizing, error) {
	m.mu.RLock()
	balance := m.accountBalance
	m.mu.RUnlock()

	if currentPrice <= 0 {
		return Sizing{}, fmt.Errorf("%w: invalid price %.8f", ErrSizingInfeasible, currentPrice)
	}
	if balance <= 0 {
		return Sizing{}, fmt.Errorf("%w: no available balance", ErrSizingInfeasible)
	}

	positionValue := balance * sizePercent / 100

	// Raise to the exchange floor; infeasible when the floor exceeds balance
	if positionValue < m.config.MinNotional {
		positionValue = m.config.MinNotional
	}
	if positionValue > balance {
		return Sizing{}, fmt.Errorf("%w: minimum notional requires %.2f, balance %.2f", ErrSizingInfeasible, positionValue, balance)
	}

	// Leverage scales the exposure figure; order quantity is set by the
	// committed position value, with margin handled on the exchange side
	notional := positionValue * m.config.Leverage
	quantity := positionValue / currentPrice
	if m.config.QuantityStep > 0 {
		quantity = math.Floor(quantity/m.config.QuantityStep) * m.config.QuantityStep
	}
	if quantity <= 0 {
		return Sizing{}, fmt.Errorf("%w: quantity below step size at price %.2f", ErrSizingInfeasible, currentPrice)
	}
	if quantity*currentPrice < m.config.MinNotional {
		return Sizing{}, fmt.Errorf("%w: floored notional %.2f below minimum %.2f", ErrSizingInfeasible, quantity*currentPrice, m.config.MinNotional)
	}

	m.logger.Debug().
		Float64("balance", balance).
		Float64("size_percent", sizePercent).
		Float64("position_value", positionValue).
		Float64("notional", notional).
		Float64("quantity", quantity).
		Msg("position sized")

	return Sizing{PositionValue: positionValue, Notional: notional, Quantity: quantity}, nil
}

// RegisterPositionOpen registers a new position opening and counts it
// against the daily trade tally
func (m *Manager) RegisterPositionOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()
	m.openPositions++
	m.tradesToday++
}

// TradesToday returns the number of positions opened in the current day
func (m *Manager) TradesToday() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()
	return m.tradesToday
}

// RegisterPositionClose registers a position closing with its realized PnL
func (m *Manager) RegisterPositionClose(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openPositions--
	if m.openPositions < 0 {
		m.openPositions = 0
	}

	m.checkDailyReset()
	m.dailyPnL += pnl
}

// DailyPnL returns the current daily P&L
func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// OpenPositionCount returns the number of open positions
func (m *Manager) OpenPositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openPositions
}

// ResetDaily zeroes the daily P&L and trade tally, used by the midnight
// scheduler job
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = 0
	m.tradesToday = 0
	m.dailyPnLReset = time.Now().Truncate(24 * time.Hour)
}

// checkDailyReset resets the daily tallies on date rollover. Caller must hold
// the lock.
func (m *Manager) checkDailyReset() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(m.dailyPnLReset) {
		m.dailyPnL = 0
		m.tradesToday = 0
		m.dailyPnLReset = today
	}
}
