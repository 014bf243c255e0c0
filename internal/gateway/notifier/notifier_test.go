package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "42", payload["chat_id"])
		assert.Equal(t, "hello", payload["text"])
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = func(int) time.Duration { return 0 }
	require.NoError(t, tg.SendText("hello"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTelegram_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Retries = 2
	tg.Backoff = func(int) time.Duration { return 0 }
	err := tg.SendText("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegram_RequiresCredentials(t *testing.T) {
	assert.Error(t, NewTelegram("", "1").SendText("x"))
}

func TestStructuredMessage_Render(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "!",
		Title: "BTC above 70000",
		Sections: []MessageSection{
			{Title: "Rule", Lines: []string{"price above 70000", "  "}},
			{Title: "Empty", Lines: []string{""}},
		},
		Footer:    "tradepulse ```",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "! BTC above 70000"))
	assert.Contains(t, out, "Rule\n- price above 70000\n")
	assert.NotContains(t, out, "Empty")
	assert.Contains(t, out, "tradepulse '''")
	assert.Contains(t, out, "Time: 2024-05-01 12:00:00 UTC")
}
