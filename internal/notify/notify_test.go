package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
)

type recordingChannel struct {
	name    string
	enabled bool
	err     error
	got     []Notification
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return c.enabled }
func (c *recordingChannel) Send(_ context.Context, n Notification) error {
	c.got = append(c.got, n)
	return c.err
}

func TestMultiNotifierFanOut(t *testing.T) {
	m := metrics.New()
	mn := NewMultiNotifier(LevelAll, m, zerolog.Nop())
	good := &recordingChannel{name: "good", enabled: true}
	bad := &recordingChannel{name: "bad", enabled: true, err: errors.New("down")}
	off := &recordingChannel{name: "off"}
	mn.AddChannel(bad)
	mn.AddChannel(good)
	mn.AddChannel(off)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hello"})
	if err == nil || !strings.Contains(err.Error(), "bad: down") {
		t.Fatalf("err = %v", err)
	}
	if len(good.got) != 1 || len(off.got) != 0 {
		t.Errorf("good got %d, off got %d", len(good.got), len(off.got))
	}
	if good.got[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
	if v := testutil.ToFloat64(m.NotificationFails.WithLabelValues("bad")); v != 1 {
		t.Errorf("failure counter = %v", v)
	}
	if names := mn.Channels(); len(names) != 2 {
		t.Errorf("channels = %v", names)
	}
}

func TestMultiNotifierLevels(t *testing.T) {
	tests := []struct {
		level NotificationLevel
		typ   NotificationType
		want  bool
	}{
		{LevelAll, NotificationRecommendation, true},
		{LevelTradesOnly, NotificationRecommendation, false},
		{LevelTradesOnly, NotificationFill, true},
		{LevelTradesOnly, NotificationCircuitBreaker, true},
		{LevelCriticalOnly, NotificationExit, false},
		{LevelCriticalOnly, NotificationReconciliation, true},
	}
	for _, tt := range tests {
		ch := &recordingChannel{name: "r", enabled: true}
		mn := NewMultiNotifier(tt.level, nil, zerolog.Nop())
		mn.AddChannel(ch)
		_ = mn.Send(context.Background(), Notification{Type: tt.typ})
		if got := len(ch.got) == 1; got != tt.want {
			t.Errorf("%s/%s delivered = %v, want %v", tt.level, tt.typ, got, tt.want)
		}
	}
}

func TestWebhookNotifierSignsBody(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(WebhookConfig{Enabled: true, URL: srv.URL, Secret: "s3cret"})
	n := CircuitBreakerTripped(models.CircuitBreakerStatus{Halted: true, Reason: "Daily loss limit exceeded (2%)"})
	if err := w.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if gotSig != Sign([]byte("s3cret"), gotBody) {
		t.Error("signature does not match body")
	}
	var decoded Notification
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != NotificationCircuitBreaker || decoded.Data["reason"] != "Daily loss limit exceeded (2%)" {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(WebhookConfig{Enabled: true, URL: srv.URL})
	if err := w.Send(context.Background(), Notification{Type: NotificationInfo}); err == nil {
		t.Error("expected error on 502")
	}
	if NewWebhookNotifier(WebhookConfig{Enabled: true}).IsEnabled() {
		t.Error("webhook without URL enabled")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByType(t *testing.T) {
	fw := &fakeWriter{}
	k := &KafkaNotifier{writer: fw, topic: "alerts", enabled: true}

	trade := &models.Trade{ID: "t1", Underlying: "SPY", SpreadType: models.BullPutSpread, ShortStrike: 480, LongStrike: 475,
		Expiration: time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC), Contracts: 2, BrokerOrderID: "o1"}
	if err := k.Send(context.Background(), OrderFilled(trade, 1.45)); err != nil {
		t.Fatal(err)
	}
	if len(fw.msgs) != 1 || string(fw.msgs[0].Key) != "fill" {
		t.Fatalf("messages = %+v", fw.msgs)
	}
	var n Notification
	if err := json.Unmarshal(fw.msgs[0].Value, &n); err != nil {
		t.Fatal(err)
	}
	if n.Data["trade_id"] != "t1" {
		t.Errorf("data = %v", n.Data)
	}
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf, false)
	n := ReconciliationMismatch("t1", "o1", "pending_fill", "order missing")
	n.Timestamp = time.Date(2024, 3, 5, 15, 4, 5, 0, time.UTC)
	if err := tn.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "\a[15:04:05] MISMATCH | Reconciliation mismatch") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "\n    Broker: order missing") {
		t.Errorf("message lines missing: %q", out)
	}
}

func TestMessageBuilders(t *testing.T) {
	exp := time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC)
	rec := &models.Recommendation{ID: "r1", Underlying: "SPY", SpreadType: models.BullPutSpread, ShortStrike: 480,
		LongStrike: 475, Expiration: exp, Credit: 1.5, MaxLoss: 350, SuggestedContracts: 3}
	n := RecommendationReady(rec)
	if !strings.Contains(n.Message, "SPY bull_put 480/475 2024-04-19") || n.Data["contracts"] != 3 {
		t.Errorf("recommendation = %+v", n)
	}

	trade := &models.Trade{ID: "t1", Underlying: "SPY", EntryCredit: 1.5, Expiration: exp}
	exit := ExitTriggered(trade, models.ExitProfitTarget, 0.7, 160, false)
	if !strings.Contains(exit.Message, "Close manually") || exit.Data["executed"] != false {
		t.Errorf("exit = %+v", exit)
	}

	sum := DailySummary(&models.DailyPerformance{Date: "2024-03-05", WinCount: 3, LossCount: 1}, 4)
	if sum.Data["win_rate"] != 0.75 {
		t.Errorf("summary = %+v", sum)
	}

	failure := Error(errors.New("GET /v2/account?api_key=PKSECRETVALUE1234: 401"), "scan")
	if strings.Contains(failure.Message, "PKSECRETVALUE1234") || failure.Data["task"] != "scan" {
		t.Errorf("error = %+v", failure)
	}

	fill := FillQualityAlert("SLOW_FILL", "SPY", "o1", "SPY fill took 3m0s")
	if fill.Type.Critical() || fill.Data["order_id"] != "o1" {
		t.Errorf("fill alert = %+v", fill)
	}
}
