// Package notification delivers structured pipeline events to the configured
// sinks. The core hands over plain data records; formatting and transport are
// entirely this package's concern.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// EventType classifies pipeline events
type EventType string

const (
	EventSignal       EventType = "signal"
	EventTradeOpen    EventType = "trade_open"
	EventSignalSkip   EventType = "signal_skipped"
	EventRegimeChange EventType = "regime_change"
	EventForecast     EventType = "forecast"
	EventError        EventType = "error"
)

// Event is a structured record emitted by the pipeline
type Event struct {
	Type      EventType              `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Symbol    string                 `json:"symbol,omitempty"`
	Price     float64                `json:"price,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Notifier is a delivery channel for events
type Notifier interface {
	Send(event *Event) error
	Name() string
	IsEnabled() bool
}

// Manager fans events out to all enabled notifiers
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewManager creates an empty notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger}
}

// AddNotifier registers a delivery channel
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers an event to every enabled notifier. Delivery failures are
// logged, never propagated into the pipeline.
func (m *Manager) Send(event *Event) {
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(event); err != nil {
			m.logger.Warn().Err(err).Str("notifier", n.Name()).Str("event", string(event.Type)).Msg("notification delivery failed")
		}
	}
}

// SendSignal announces an accepted, sized signal
func (m *Manager) SendSignal(symbol, direction, strategyID string, entry, stopLoss, takeProfit, quantity, winProbability float64) {
	m.Send(&Event{
		Type:      EventSignal,
		Title:     fmt.Sprintf("Signal: %s %s", direction, symbol),
		Message:   fmt.Sprintf("%s %s @ %.4f\nTP: %.4f | SL: %.4f\nQty: %.6f | WinProb: %.1f%%", direction, symbol, entry, takeProfit, stopLoss, quantity, winProbability),
		Symbol:    symbol,
		Price:     entry,
		Timestamp: time.Now(),
		Fields: map[string]interface{}{
			"strategy":        strategyID,
			"direction":       direction,
			"stop_loss":       stopLoss,
			"take_profit":     takeProfit,
			"quantity":        quantity,
			"win_probability": winProbability,
		},
	})
}

// SendSkip announces a signal dropped by the filter with its reason
func (m *Manager) SendSkip(symbol, strategyID, reason string) {
	m.Send(&Event{
		Type:      EventSignalSkip,
		Title:     fmt.Sprintf("Skipped: %s", symbol),
		Message:   fmt.Sprintf("%s signal for %s dropped: %s", strategyID, symbol, reason),
		Symbol:    symbol,
		Timestamp: time.Now(),
		Fields:    map[string]interface{}{"strategy": strategyID, "reason": reason},
	})
}

// SendRegimeChange announces a committed regime change and the profile switch
func (m *Manager) SendRegimeChange(previous, current string, confidence float64, profile string) {
	m.Send(&Event{
		Type:      EventRegimeChange,
		Title:     fmt.Sprintf("Regime: %s", current),
		Message:   fmt.Sprintf("%s -> %s (confidence %.2f)\nActive profile: %s", previous, current, confidence, profile),
		Timestamp: time.Now(),
		Fields: map[string]interface{}{
			"previous":   previous,
			"current":    current,
			"confidence": confidence,
			"profile":    profile,
		},
	})
}

// SendError surfaces a per-symbol pipeline failure
func (m *Manager) SendError(title, message string) {
	m.Send(&Event{
		Type:      EventError,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends events via the Telegram bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
	Enabled  bool   `json:"enabled"`
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(event *Event) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", event.Title, event.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends events via a Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Enabled    bool   `json:"enabled"`
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(event *Event) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00
	if event.Type == EventError || event.Type == EventSignalSkip {
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       event.Title,
		"description": event.Message,
		"color":       color,
		"timestamp":   event.Timestamp.Format(time.RFC3339),
	}

	if len(event.Fields) > 0 {
		fields := make([]map[string]interface{}, 0, len(event.Fields))
		for name, value := range event.Fields {
			fields = append(fields, map[string]interface{}{
				"name": name, "value": fmt.Sprintf("%v", value), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier writes events to the structured log. Always enabled; useful in
// dry-run mode when no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) IsEnabled() bool {
	return true
}

func (l *LogNotifier) Send(event *Event) error {
	l.logger.Info().
		Str("event", string(event.Type)).
		Str("symbol", event.Symbol).
		Fields(event.Fields).
		Msg(event.Title)
	return nil
}
