package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/notifier"
)

const defaultAPIURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   defaultAPIURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}
	if apiURL, ok := cfg.Params["api_url"].(string); ok && apiURL != "" {
		t.apiURL = apiURL
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}
	if t.apiURL == "" {
		t.apiURL = defaultAPIURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (t *Telegram) Send(ctx context.Context, result *backtest.Result) error {
	return t.sendMessage(ctx, formatResult(result))
}

func (t *Telegram) SendBatch(ctx context.Context, results []*backtest.Result) error {
	if len(results) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *%d Backtest Results*\n\n", len(results))

	for i, res := range results {
		sb.WriteString(formatResult(res))
		if i < len(results)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return t.sendMessage(ctx, sb.String())
}

func formatResult(res *backtest.Result) string {
	var sb strings.Builder
	st := res.Stats

	verdict := "❌ FAIL"
	if st.MeetsCriteria {
		verdict = "✅ PASS"
	}

	fmt.Fprintf(&sb, "%s *%s* - %s\n", verdict, res.Symbol, res.Strategy)
	fmt.Fprintf(&sb, "💰 PnL: %.2f%%\n", st.TotalPnL)
	fmt.Fprintf(&sb, "🎯 Win rate: %.1f%% (%d/%d)\n", st.WinRate*100, st.WinningTrades, st.ClosedTrades)
	fmt.Fprintf(&sb, "⚖️ Profit factor: %s\n", formatPF(st.ProfitFactor))
	if st.OpenTrades > 0 {
		fmt.Fprintf(&sb, "⏳ Open: %d\n", st.OpenTrades)
	}
	fmt.Fprintf(&sb, "⏰ %s → %s", res.StartDate.Format("2006-01-02 15:04"), res.EndDate.Format("2006-01-02 15:04"))

	return sb.String()
}

func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", pf)
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.apiURL, "/"), t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
