package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/s33g/discord-relay/internal/config"
)

const completionBody = `{
	"id": "chatcmpl-test",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "  Hello there.\n"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18}
}`

func testChat(serverURL string) config.ChatConfig {
	chat := config.DefaultConfig().Chat
	chat.APIKey = "sk-test"
	chat.APIAddress = serverURL + "/v1"
	chat.Model = "test-model"
	return chat
}

func newTestClient(t *testing.T, chat config.ChatConfig) *Client {
	t.Helper()

	client, err := NewClient(chat, zerolog.Nop(), WithBackoff(time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func testMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: "persona\nCurrent date: 2024-03"},
		{Role: RoleUser, Content: "hi"},
	}
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer credential, got %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		if req["model"] != "test-model" {
			t.Errorf("Expected model test-model, got %v", req["model"])
		}
		if req["temperature"] != 0.0 {
			t.Errorf("Expected temperature 0, got %v", req["temperature"])
		}
		if req["max_tokens"] != 100.0 {
			t.Errorf("Expected max_tokens 100, got %v", req["max_tokens"])
		}
		if req["top_p"] != 1.0 {
			t.Errorf("Expected top_p 1, got %v", req["top_p"])
		}
		if req["frequency_penalty"] != 0.0 || req["presence_penalty"] != 0.0 {
			t.Errorf("Expected zero penalties, got %v %v", req["frequency_penalty"], req["presence_penalty"])
		}
		if _, ok := req["stop"]; ok {
			t.Errorf("Expected no stop field for an empty stop list, got %v", req["stop"])
		}

		msgs, _ := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("Expected 2 messages, got %d", len(msgs))
			writeJSON(w, http.StatusOK, completionBody)
			return
		}
		first, _ := msgs[0].(map[string]any)
		second, _ := msgs[1].(map[string]any)
		if first["role"] != "system" || second["role"] != "user" {
			t.Errorf("Expected system then user, got %v then %v", first["role"], second["role"])
		}
		if second["content"] != "hi" {
			t.Errorf("Expected user content hi, got %v", second["content"])
		}

		writeJSON(w, http.StatusOK, completionBody)
	}))
	defer server.Close()

	chat := testChat(server.URL)
	chat.Temperature = 0
	client := newTestClient(t, chat)

	content, err := client.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	// Content comes back untrimmed
	if content != "  Hello there.\n" {
		t.Errorf("Unexpected content %q", content)
	}
}

func TestClient_StopSequences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stop []string `json:"stop"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Stop) != 2 || req.Stop[0] != "###" || req.Stop[1] != "\n\n" {
			t.Errorf("Unexpected stop sequences %v", req.Stop)
		}
		writeJSON(w, http.StatusOK, completionBody)
	}))
	defer server.Close()

	chat := testChat(server.URL)
	chat.Stop = []string{"###", "\n\n"}
	client := newTestClient(t, chat)

	// Mutating the caller's slice must not leak into the client
	chat.Stop[0] = "changed"

	if _, err := client.Complete(context.Background(), testMessages()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestClient_RemoteError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, testChat(server.URL))

	_, err := client.Complete(context.Background(), testMessages())
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}

	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if cerr.Kind != KindRemote {
		t.Errorf("Expected remote failure, got %s", cerr.Kind)
	}
	if cerr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", cerr.StatusCode)
	}
	if cerr.RequestID == "" {
		t.Error("Expected a request id on the error")
	}
	// Remote errors are never retried
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestClient_RespondReturnsErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	chat := testChat(server.URL)
	chat.ErrorMessage = "something broke"
	client := newTestClient(t, chat)

	if got := client.Respond(context.Background(), testMessages()); got != "something broke" {
		t.Errorf("Expected configured error message, got %q", got)
	}
}

func TestClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"chatcmpl-empty","object":"chat.completion","choices":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, testChat(server.URL))

	_, err := client.Complete(context.Background(), testMessages())
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("Expected ErrNoChoices, got %v", err)
	}
	if KindOf(err) != KindRemote {
		t.Errorf("Expected remote failure, got %s", KindOf(err))
	}
}

func TestClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{not json`)
	}))
	defer server.Close()

	client := newTestClient(t, testChat(server.URL))

	_, err := client.Complete(context.Background(), testMessages())
	if err == nil {
		t.Fatal("Expected error for malformed body")
	}
	if KindOf(err) != KindRemote {
		t.Errorf("Expected remote failure, got %v", err)
	}
}

func TestClient_RetriesTransportFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("Expected a hijackable response writer")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("Hijack failed: %v", err)
				return
			}
			conn.Close()
			return
		}
		writeJSON(w, http.StatusOK, completionBody)
	}))
	defer server.Close()

	chat := testChat(server.URL)
	chat.MaxRetries = 1
	client := newTestClient(t, chat)

	content, err := client.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if content != "  Hello there.\n" {
		t.Errorf("Unexpected content %q", content)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestClient_TransportFailureWithoutRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	chat := testChat(url)
	chat.MaxRetries = 0
	client := newTestClient(t, chat)

	_, err := client.Complete(context.Background(), testMessages())
	if KindOf(err) != KindTransport {
		t.Fatalf("Expected transport failure, got %v", err)
	}
}

func TestClient_Deadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, testChat(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, testMessages())
	if KindOf(err) != KindTransport {
		t.Fatalf("Expected transport failure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the caller deadline to bound the call, took %v", elapsed)
	}
}

func TestClient_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, completionBody)
	}))
	defer server.Close()

	chat := testChat(server.URL)
	chat.MaxConcurrent = 1
	client := newTestClient(t, chat)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Complete(context.Background(), testMessages()); err != nil {
				t.Errorf("Complete() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("Expected at most 1 request in flight, saw %d", peak.Load())
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	chat := testChat("http://localhost")
	chat.APIKey = ""

	if _, err := NewClient(chat, zerolog.Nop()); err == nil {
		t.Error("Expected error for missing api key")
	}
}

func TestBackoff(t *testing.T) {
	c := &Client{baseBackoff: 100 * time.Millisecond, maxBackoff: 250 * time.Millisecond}

	for attempt := 1; attempt <= 5; attempt++ {
		for range 20 {
			d := c.backoff(attempt)
			if d <= 0 || d > 250*time.Millisecond {
				t.Fatalf("backoff(%d) = %v out of range", attempt, d)
			}
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindTransport, "transport"},
		{KindRemote, "remote"},
		{Kind(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
