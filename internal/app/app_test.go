package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/McdWebs/WA-bot-sub000/internal/metrics"
)

func TestHTTPHandler_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordSent("shema")

	var hits int32
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(newHTTPHandler(reg, webhook))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "wabot_reminders_sent_total") {
		t.Fatalf("metrics body missing counter")
	}

	resp, err = http.Get(srv.URL + "/webhook/whatsapp")
	if err != nil {
		t.Fatalf("webhook get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("webhook must only accept POST, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/webhook/whatsapp", "application/x-www-form-urlencoded", strings.NewReader("From=x"))
	if err != nil {
		t.Fatalf("webhook post: %v", err)
	}
	resp.Body.Close()
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("webhook handler not reached")
	}
}
