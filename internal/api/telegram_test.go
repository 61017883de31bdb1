package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

type fakeServer struct {
	mu    sync.Mutex
	calls map[string][]string
	reply map[string]string
}

func newFakeServer(t *testing.T, reply map[string]string) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{calls: map[string][]string{}, reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /bot<token>/<method>
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		method := parts[len(parts)-1]
		body, _ := io.ReadAll(r.Body)

		fs.mu.Lock()
		fs.calls[method] = append(fs.calls[method], string(body))
		out, ok := fs.reply[method]
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
			return
		}
		w.Write([]byte(out))
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) bodies(method string) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.calls[method]...)
}

func TestTelegram_GetUpdates(t *testing.T) {
	fs, srv := newFakeServer(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[{"update_id":5,"message":{"message_id":1}},{"update_id":6,"poll":{"id":"p"}}]}`,
	})

	tg, err := New("123:abc", WithServerURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updates, err := tg.GetUpdates(context.Background(), GetUpdatesParams{
		Offset:         5,
		Limit:          10,
		Timeout:        0,
		AllowedUpdates: []string{"message", "poll"},
	})
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if !strings.Contains(string(updates[1]), `"poll"`) {
		t.Errorf("raw update not preserved: %s", updates[1])
	}

	sent := fs.bodies("getUpdates")
	if len(sent) != 1 {
		t.Fatalf("expected 1 request, got %d", len(sent))
	}
	var got GetUpdatesParams
	if err := sonic.UnmarshalString(sent[0], &got); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if got.Offset != 5 || got.Limit != 10 {
		t.Errorf("unexpected request params: %+v", got)
	}
	if len(got.AllowedUpdates) != 2 || got.AllowedUpdates[0] != "message" {
		t.Errorf("unexpected allowed_updates: %v", got.AllowedUpdates)
	}
}

func TestTelegram_GetUpdates_EmptyAllowedUpdatesIsSent(t *testing.T) {
	fs, srv := newFakeServer(t, map[string]string{"getUpdates": `{"ok":true,"result":[]}`})
	tg, err := New("123:abc", WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := tg.GetUpdates(context.Background(), GetUpdatesParams{}); err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if body := fs.bodies("getUpdates")[0]; !strings.Contains(body, `"allowed_updates":[]`) {
		t.Errorf("expected explicit empty allowed_updates, got %s", body)
	}
}

func TestTelegram_GetUpdates_APIError(t *testing.T) {
	_, srv := newFakeServer(t, map[string]string{
		"getUpdates": `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`,
	})
	tg, err := New("123:abc", WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = tg.GetUpdates(context.Background(), GetUpdatesParams{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 7 {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
	if apiErr.Fatal() {
		t.Error("429 should not be fatal")
	}
}

func TestTelegram_GetUpdates_CancelAbortsLongPoll(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tg, err := New("123:abc", WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tg.GetUpdates(ctx, GetUpdatesParams{Timeout: 50})
		errCh <- err
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetUpdates kept blocking after cancel")
	}
}

func TestTelegram_GetMeAndDeleteWebhook(t *testing.T) {
	fs, srv := newFakeServer(t, map[string]string{
		"getMe":         `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Flow","username":"flow_bot"}}`,
		"deleteWebhook": `{"ok":true,"result":true}`,
	})
	tg, err := New("123:abc", WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	me, err := tg.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.ID != 42 || me.Username != "flow_bot" {
		t.Errorf("unexpected identity: %+v", me)
	}

	if err := tg.DeleteWebhook(context.Background(), true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if len(fs.bodies("deleteWebhook")) != 1 {
		t.Error("expected one deleteWebhook call")
	}
}

func TestNew_EmptyToken(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestError_Fatal(t *testing.T) {
	cases := map[int]bool{401: true, 404: true, 409: false, 500: false}
	for code, want := range cases {
		if got := (&Error{Code: code}).Fatal(); got != want {
			t.Errorf("code %d: Fatal() = %v, want %v", code, got, want)
		}
	}
}
