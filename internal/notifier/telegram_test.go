package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelegram_Send(t *testing.T) {
	var gotPath string
	var gotReq sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "tok", APIBase: srv.URL}, zap.NewNop())
	require.NoError(t, tg.Send(context.Background(), "12345", "<b>hi</b>"))

	require.Equal(t, "/bottok/sendMessage", gotPath)
	require.Equal(t, int64(12345), gotReq.ChatID)
	require.Equal(t, "<b>hi</b>", gotReq.Text)
	require.Equal(t, "HTML", gotReq.ParseMode)
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{OK: false, ErrorCode: 403, Description: "bot was blocked"})
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "tok", APIBase: srv.URL}, zap.NewNop())
	err := tg.Send(context.Background(), "12345", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bot was blocked")
}

func TestTelegram_BadRecipient(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "tok"}, zap.NewNop())
	require.Error(t, tg.Send(context.Background(), "not-a-chat-id", "hi"))
}
