package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_RuntimeCollectorsAndBuildInfo(t *testing.T) {
	p := Init(Config{})
	if p.cfg.Path != "/metrics" {
		t.Fatalf("path=%q want /metrics", p.cfg.Path)
	}

	reloads := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_reload_probe_total", Help: "probe"})
	p.Register(reloads)
	reloads.Add(2)
	if got := testutil.ToFloat64(reloads); got != 2 {
		t.Fatalf("probe=%v want 2", got)
	}

	body := scrape(t, p)
	for _, want := range []string{"go_goroutines", `app_build_info{`, `version="dev"`, "catalog_reload_probe_total 2"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in payload:\n%s", want, body)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	p := Init(Config{Addr: "127.0.0.1:0"})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, log) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}

func TestServe_BadAddr(t *testing.T) {
	p := Init(Config{Addr: "127.0.0.1:-1"})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Serve(ctx, log); err == nil {
		t.Fatalf("expected listen error")
	}
}
