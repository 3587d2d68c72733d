package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"BollWatch/internal/metrics"
	"BollWatch/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func testReport() *model.RunReport {
	at := time.Date(2026, 3, 2, 11, 0, 5, 0, time.UTC)
	return &model.RunReport{
		RunID:      "run-1",
		Trigger:    model.TriggerScheduled,
		StartedAt:  at.Add(-5 * time.Second),
		FinishedAt: at,
		Params:     model.ScanParams{Period: 20, K: 2, Threshold: 0.02},
		Status:     model.StatusPartial,
		RunError: &model.RunError{
			Kind:        model.ErrAuthExpired,
			Message:     "HTTP 401",
			Remediation: "paste a fresh token",
		},
		Results: []model.SymbolResult{{
			Symbol:    "700.HK",
			Name:      "腾讯控股",
			LastClose: decimal.NewFromInt(399),
			Bands: &model.Bands{
				Lower:  decimal.NewFromInt(380),
				Middle: decimal.NewFromInt(390),
				Upper:  decimal.NewFromInt(400),
			},
			Proximity:        model.NearUpper,
			Position:         decimal.NewFromInt(95),
			DistanceUpperPct: decimal.RequireFromString("0.25"),
		}},
	}
}

type fakeNotifier struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(context.Context, *model.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func TestMulti_ContinuesPastFailure(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	bad := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	good := &fakeNotifier{name: "telegram"}
	multi := NewMulti(m, bad, nil, good)

	err := multi.Notify(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Errorf("expected joined error naming email, got %v", err)
	}
	if good.calls != 1 {
		t.Errorf("expected telegram to be called once, got %d", good.calls)
	}
	if got := testutil.ToFloat64(m.NotifyFailures.WithLabelValues("email")); got != 1 {
		t.Errorf("notify failures = %v, want 1", got)
	}
}

func TestFormatReport(t *testing.T) {
	msg := FormatReport(testReport())
	for _, want := range []string{"腾讯控股", "700.HK", "paste a fresh token", "接近上轨", "成功 1 | 失败 0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	msg := FormatStatus(StatusView{
		State:             "IDLE",
		NextRun:           time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC),
		Last:              testReport(),
		CredentialVersion: 3,
		CredentialExpires: &exp,
	})
	for _, want := range []string{"IDLE", "2026-03-03 11:00", "PARTIAL", "令牌版本: 3", "2026-04-01"} {
		if !strings.Contains(msg, want) {
			t.Errorf("status missing %q:\n%s", want, msg)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("abcdefghi\n", 10)
	parts := splitMessage(text, 25)
	if strings.Join(parts, "") != text {
		t.Fatal("parts do not reassemble the message")
	}
	for _, p := range parts {
		if len(p) > 25 {
			t.Errorf("part too long: %d", len(p))
		}
	}
	if got := splitMessage("short", 25); len(got) != 1 {
		t.Errorf("short message split into %d parts", len(got))
	}
	long := strings.Repeat("x", 60)
	if got := splitMessage(long, 25); len(got) != 3 || strings.Join(got, "") != long {
		t.Errorf("long line split = %v", got)
	}
}

func TestTelegramNotify(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
			t.Errorf("unexpected payload %v", payload)
		}
		mu.Lock()
		texts = append(texts, payload["text"])
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	if err := tn.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(texts) != 1 || !strings.Contains(texts[0], "700.HK") {
		t.Errorf("unexpected messages: %v", texts)
	}
}

func TestTelegramSendWithRetry_GivesUp(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	err := tn.SendWithRetry(context.Background(), "hi", 0)
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected status 400 error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestStartPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replied := make(chan string, 1)
	var served sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			body := `{"ok":true,"result":[]}`
			served.Do(func() {
				body = `{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/scan","chat":{"id":99}}},
					{"update_id":8,"message":{"text":" /status ","chat":{"id":42}}}
				]}`
			})
			w.Write([]byte(body))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			replied <- payload["text"]
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL

	var (
		mu   sync.Mutex
		cmds []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tn.StartPolling(ctx, func(cmd string) string {
			mu.Lock()
			cmds = append(cmds, cmd)
			mu.Unlock()
			return "status: " + cmd
		})
	}()

	select {
	case got := <-replied:
		if got != "status: /status" {
			t.Errorf("reply = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(cmds) != 1 || cmds[0] != "/status" {
		t.Errorf("handled commands = %v, want only /status from the configured chat", cmds)
	}
}

func TestEmailNotify(t *testing.T) {
	var sent []byte
	e := NewEmailNotifier(EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "bot@example.com",
		To:   []string{"a@example.com", "b@example.com"},
	})
	e.now = func() time.Time { return time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC) }
	e.send = func(_ context.Context, msg []byte) error {
		sent = msg
		return nil
	}

	if err := e.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	head, body, ok := strings.Cut(string(sent), "\r\n\r\n")
	if !ok {
		t.Fatal("message has no header/body separator")
	}
	for _, want := range []string{"To: a@example.com, b@example.com", "Subject: =?UTF-8?b?", "Content-Type: text/html; charset=UTF-8"} {
		if !strings.Contains(head, want) {
			t.Errorf("headers missing %q:\n%s", want, head)
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\r\n", ""))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(string(decoded), "腾讯控股") || !strings.Contains(string(decoded), "paste a fresh token") {
		t.Error("html body missing report content")
	}
}

func TestEmailNotify_SendError(t *testing.T) {
	e := NewEmailNotifier(EmailConfig{Host: "smtp.example.com", Port: 465})
	e.send = func(context.Context, []byte) error { return io.ErrUnexpectedEOF }
	if err := e.Notify(context.Background(), testReport()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
