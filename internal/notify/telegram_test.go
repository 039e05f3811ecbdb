package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(&TelegramConfig{APIBase: server.URL, Token: "tok123"})

	err := notifier.SendMessage(context.Background(), "chat42", "hello")

	require.NoError(t, err)
	assert.Equal(t, "/bottok123/sendMessage", gotPath)
	assert.Equal(t, "chat42", gotBody["chat_id"])
	assert.Equal(t, "hello", gotBody["text"])
}

func TestTelegramNotifier_SendTicket_CarriesPayload(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(&TelegramConfig{APIBase: server.URL, Token: "tok123"})

	err := notifier.SendTicket(context.Background(), "chat42", "Your ticket", "TICKET-ID:X | EVENT:Y | OWNER:Z")

	require.NoError(t, err)
	assert.Contains(t, gotBody["text"], "Your ticket")
	assert.Contains(t, gotBody["text"], "TICKET-ID:X")
}

func TestTelegramNotifier_APIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"bot was blocked by the user"}`)
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(&TelegramConfig{APIBase: server.URL, Token: "tok123"})

	err := notifier.SendMessage(context.Background(), "chat42", "hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}
