package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOllama answers /api/chat and records the message lists it receives.
func fakeOllama(t *testing.T, reply string) (*httptest.Server, *[][]chatMessage) {
	t.Helper()
	var seen [][]chatMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad chat request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		seen = append(seen, req.Messages)
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: chatMessage{Role: "assistant", Content: reply},
			Done:    true,
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &seen
}

func TestChatService_Ask(t *testing.T) {
	backend, seen := fakeOllama(t, "A fine question.")
	svc := NewChatService(backend.URL, "test-model")

	reply, err := svc.Ask(context.Background(), "bk", 0, "<p>Once upon a time.</p>", "What happens?")
	if err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if reply != "A fine question." {
		t.Errorf("reply = %q", reply)
	}

	if _, err := svc.Ask(context.Background(), "bk", 0, "<p>Once upon a time.</p>", "And then?"); err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}

	if len(*seen) != 2 {
		t.Fatalf("backend saw %d requests", len(*seen))
	}

	first := (*seen)[0]
	if len(first) != 2 || first[0].Role != "system" || first[1].Content != "What happens?" {
		t.Errorf("first request messages = %+v", first)
	}
	if !strings.Contains(first[0].Content, "Once upon a time.") {
		t.Errorf("system prompt missing chapter text: %q", first[0].Content)
	}

	// Second request carries the whole history.
	second := (*seen)[1]
	want := []string{"system", "user", "assistant", "user"}
	if len(second) != len(want) {
		t.Fatalf("second request messages = %+v", second)
	}
	for i, role := range want {
		if second[i].Role != role {
			t.Errorf("second[%d].Role = %q, want %q", i, second[i].Role, role)
		}
	}
	if second[3].Content != "And then?" {
		t.Errorf("second[3].Content = %q", second[3].Content)
	}
}

func TestChatService_HistoriesAreIndependent(t *testing.T) {
	backend, seen := fakeOllama(t, "ok")
	svc := NewChatService(backend.URL, "test-model")

	ctx := context.Background()
	svc.Ask(ctx, "bk", 0, "", "first chapter question")
	svc.Ask(ctx, "bk", 1, "", "second chapter question")

	// Each conversation starts fresh: system plus one user message.
	for i, msgs := range *seen {
		if len(msgs) != 2 {
			t.Errorf("request %d has %d messages, want 2", i, len(msgs))
		}
	}
}

func TestChatService_Reset(t *testing.T) {
	backend, seen := fakeOllama(t, "ok")
	svc := NewChatService(backend.URL, "test-model")

	ctx := context.Background()
	svc.Ask(ctx, "bk", 0, "", "one")
	svc.Reset("bk", 0)
	svc.Ask(ctx, "bk", 0, "", "two")

	last := (*seen)[len(*seen)-1]
	if len(last) != 2 {
		t.Errorf("post-reset request has %d messages, want 2", len(last))
	}
}

func TestChatService_BackendError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer backend.Close()

	svc := NewChatService(backend.URL, "test-model")
	if _, err := svc.Ask(context.Background(), "bk", 0, "", "hi"); err == nil {
		t.Fatal("Ask() should fail when the backend errors")
	}
}

func TestExtractText(t *testing.T) {
	got := extractText("<div><h1>Title</h1><p>First.</p><p>Second.</p></div>")
	if !strings.Contains(got, "Title") || !strings.Contains(got, "First.") {
		t.Errorf("extractText() = %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("extractText() leaked markup: %q", got)
	}
	// Block elements separate their text.
	if strings.Contains(got, "TitleFirst") {
		t.Errorf("extractText() ran blocks together: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 3); got != "hél" {
		t.Errorf("truncateRunes() = %q", got)
	}
	if got := truncateRunes("short", 100); got != "short" {
		t.Errorf("truncateRunes() = %q", got)
	}
}

func TestHandleChat(t *testing.T) {
	backend, _ := fakeOllama(t, "Good question!")
	ts := newTestServer(t, NewChatService(backend.URL, "test-model"))

	resp, err := http.Post(ts.URL+"/chat/test-book/0", "application/json",
		strings.NewReader(`{"message":"What is this about?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if out.Reply != "Good question!" {
		t.Errorf("reply = %q", out.Reply)
	}
}

func TestHandleChat_Errors(t *testing.T) {
	backend, _ := fakeOllama(t, "ok")
	ts := newTestServer(t, NewChatService(backend.URL, "test-model"))

	cases := []struct {
		path string
		body string
		want int
	}{
		{"/chat/ghost/0", `{"message":"hi"}`, http.StatusNotFound},
		{"/chat/test-book/99", `{"message":"hi"}`, http.StatusNotFound},
		{"/chat/test-book/0", `not json`, http.StatusBadRequest},
		{"/chat/test-book/0", `{"message":""}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		resp, err := http.Post(ts.URL+c.path, "application/json", strings.NewReader(c.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("POST %s with %q: status = %d, want %d", c.path, c.body, resp.StatusCode, c.want)
		}
	}
}

func TestHandleChat_BackendDown(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer dead.Close()
	ts := newTestServer(t, NewChatService(dead.URL, "test-model"))

	resp, err := http.Post(ts.URL+"/chat/test-book/0", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHandleChatReset(t *testing.T) {
	backend, _ := fakeOllama(t, "ok")
	ts := newTestServer(t, NewChatService(backend.URL, "test-model"))

	resp, err := http.Post(ts.URL+"/chat/test-book/0/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("body = %v", out)
	}
}
