package telegram

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/notifier"
)

func TestTelegram_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Telegram)(nil)
}

func TestTelegram_Name(t *testing.T) {
	tg := New("token", "chatid")
	if tg.Name() != "telegram" {
		t.Errorf("expected 'telegram', got '%s'", tg.Name())
	}
}

func TestTelegram_Init(t *testing.T) {
	tg := &Telegram{}

	cfg := notifier.Config{
		Params: map[string]any{
			"bot_token": "test-token",
			"chat_id":   "test-chat",
		},
	}

	err := tg.Init(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tg.botToken != "test-token" {
		t.Errorf("expected bot_token 'test-token', got '%s'", tg.botToken)
	}
	if tg.chatID != "test-chat" {
		t.Errorf("expected chat_id 'test-chat', got '%s'", tg.chatID)
	}
	if tg.apiURL != defaultAPIURL {
		t.Errorf("expected default api url, got '%s'", tg.apiURL)
	}
}

func TestTelegram_Init_MissingToken(t *testing.T) {
	tg := &Telegram{}

	err := tg.Init(notifier.Config{Params: map[string]any{"chat_id": "test-chat"}})
	if err == nil {
		t.Error("expected error for missing bot_token")
	}
}

func TestTelegram_Init_MissingChatID(t *testing.T) {
	tg := &Telegram{}

	err := tg.Init(notifier.Config{Params: map[string]any{"bot_token": "test-token"}})
	if err == nil {
		t.Error("expected error for missing chat_id")
	}
}

func passing() *backtest.Result {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return &backtest.Result{
		Strategy:  "cci_adx",
		Symbol:    "BTCUSDT",
		StartDate: start,
		EndDate:   start.Add(24 * time.Hour),
		Stats: backtest.Stats{
			ClosedTrades:  4,
			OpenTrades:    1,
			WinningTrades: 3,
			LosingTrades:  1,
			TotalPnL:      1.25,
			WinRate:       0.75,
			ProfitFactor:  2.5,
			MeetsCriteria: true,
		},
	}
}

func TestTelegram_Send(t *testing.T) {
	var (
		receivedPath    string
		receivedPayload map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	tg := &Telegram{}
	err := tg.Init(notifier.Config{Params: map[string]any{
		"bot_token": "test-token",
		"chat_id":   "test-chat",
		"api_url":   server.URL,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tg.Send(context.Background(), passing()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedPath != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %s", receivedPath)
	}
	if receivedPayload["chat_id"] != "test-chat" {
		t.Errorf("expected chat_id test-chat, got %v", receivedPayload["chat_id"])
	}
	text, _ := receivedPayload["text"].(string)
	if !strings.Contains(text, "BTCUSDT") {
		t.Errorf("message should contain symbol: %q", text)
	}
}

func TestTelegram_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer server.Close()

	tg := New("token", "chat")
	tg.apiURL = server.URL

	if err := tg.Send(context.Background(), passing()); err == nil {
		t.Error("expected error for API failure")
	}
}

func TestFormatResult_Pass(t *testing.T) {
	formatted := formatResult(passing())

	for _, want := range []string{"✅ PASS", "BTCUSDT", "cci_adx", "1.25%", "75.0% (3/4)", "2.50", "Open: 1", "2024-01-15 10:30"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted message should contain %q:\n%s", want, formatted)
		}
	}
}

func TestFormatResult_FailInfinitePF(t *testing.T) {
	res := passing()
	res.Stats.MeetsCriteria = false
	res.Stats.OpenTrades = 0
	res.Stats.ProfitFactor = math.Inf(1)

	formatted := formatResult(res)

	if !strings.Contains(formatted, "❌ FAIL") {
		t.Error("failing result should be marked FAIL")
	}
	if !strings.Contains(formatted, "∞") {
		t.Error("infinite profit factor should render as ∞")
	}
	if strings.Contains(formatted, "Open:") {
		t.Error("open line should be omitted with no open trades")
	}
}

func TestTelegram_SendBatch_Empty(t *testing.T) {
	tg := New("token", "chat")

	err := tg.SendBatch(context.Background(), nil)
	if err != nil {
		t.Errorf("empty batch should not return error: %v", err)
	}
}

func TestTelegram_SendBatch(t *testing.T) {
	var text string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		text, _ = payload["text"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tg := New("token", "chat")
	tg.apiURL = server.URL

	second := passing()
	second.Symbol = "ETHUSDT"
	if err := tg.SendBatch(context.Background(), []*backtest.Result{passing(), second}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(text, "2 Backtest Results") {
		t.Errorf("batch header missing: %q", text)
	}
	if !strings.Contains(text, "BTCUSDT") || !strings.Contains(text, "ETHUSDT") {
		t.Errorf("batch should include both symbols: %q", text)
	}
}
