package proxymgr

import (
	"errors"
	"log/slog"
	"testing"
	"testing/synctest"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// testProxyURL is the proxy URL used in tests.
const testProxyURL = "socks5h://localhost:1080"

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		proxies   []string
		wantCount int
	}{
		{
			name:      "no proxies",
			proxies:   nil,
			wantCount: 0,
		},
		{
			name:      "single proxy",
			proxies:   []string{testProxyURL},
			wantCount: 1,
		},
		{
			name:      "multiple proxies",
			proxies:   []string{"socks5h://proxy1:1080", "socks5h://proxy2:1080"},
			wantCount: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log := slog.Default()
			cfg := &config.Config{
				Proxy: config.Proxy{
					Proxies: tc.proxies,
				},
			}

			mgr := New(log, cfg, observability.New())

			if got := mgr.AvailableCount(); got != tc.wantCount {
				t.Errorf("AvailableCount() = %d, want %d", got, tc.wantCount)
			}

			if got := len(mgr.GetStats()); got != tc.wantCount {
				t.Errorf("len(GetStats()) = %d, want %d", got, tc.wantCount)
			}
		})
	}
}

func TestGetRandomProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		proxies   []string
		wantEmpty bool
	}{
		{
			name:      "no proxies returns empty",
			proxies:   nil,
			wantEmpty: true,
		},
		{
			name:      "single proxy returns that proxy",
			proxies:   []string{testProxyURL},
			wantEmpty: false,
		},
		{
			name:      "multiple proxies returns one of them",
			proxies:   []string{"socks5h://proxy1:1080", "socks5h://proxy2:1080"},
			wantEmpty: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log := slog.Default()
			cfg := &config.Config{
				Proxy: config.Proxy{
					Proxies: tc.proxies,
				},
			}

			mgr := New(log, cfg, observability.New())
			got := mgr.GetRandomProxy()

			if tc.wantEmpty && got != "" {
				t.Errorf("GetRandomProxy() = %q, want empty", got)
			}

			if !tc.wantEmpty && got == "" {
				t.Errorf("GetRandomProxy() = empty, want non-empty")
			}
		})
	}
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:        []string{testProxyURL},
			MaxFailures:    3,
			FailureBackoff: 1 * time.Minute,
		},
	}

	mgr := New(log, cfg, observability.New())
	proxy := testProxyURL

	for range 3 {
		mgr.MarkFailed(proxy)
	}

	stats := mgr.GetStats()
	if stats[proxy].State != ProxyStateFailed {
		t.Errorf("State = %v, want ProxyStateFailed", stats[proxy].State)
	}

	if stats[proxy].FailureCount != 3 {
		t.Errorf("FailureCount = %d, want 3", stats[proxy].FailureCount)
	}

	if mgr.AvailableCount() != 0 {
		t.Errorf("AvailableCount() = %d, want 0 during backoff", mgr.AvailableCount())
	}
}

func TestMarkSuccess(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:        []string{testProxyURL},
			MaxFailures:    3,
			FailureBackoff: 1 * time.Minute,
		},
	}

	mgr := New(log, cfg, observability.New())
	proxy := testProxyURL

	for range 3 {
		mgr.MarkFailed(proxy)
	}

	mgr.MarkSuccess(proxy)

	stats := mgr.GetStats()
	if stats[proxy].State != ProxyStateAvailable {
		t.Errorf("State = %v, want ProxyStateAvailable", stats[proxy].State)
	}

	if stats[proxy].FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", stats[proxy].FailureCount)
	}
}

func TestBackoffExpiry(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:        []string{testProxyURL},
			MaxFailures:    1,
			FailureBackoff: 100 * time.Millisecond,
		},
	}

	synctest.Test(t, func(t *testing.T) {
		mgr := New(log, cfg, observability.New())
		proxy := testProxyURL

		mgr.MarkFailed(proxy)

		if mgr.AvailableCount() != 0 {
			t.Errorf("AvailableCount() = %d, want 0", mgr.AvailableCount())
		}

		time.Sleep(150 * time.Millisecond)

		if mgr.AvailableCount() != 1 {
			t.Errorf("AvailableCount() after backoff = %d, want 1", mgr.AvailableCount())
		}
	})
}

func TestMarkFailedNonExistent(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies: []string{testProxyURL},
		},
	}

	mgr := New(log, cfg, observability.New())
	mgr.MarkFailed("socks5h://nonexistent:1080")
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:        []string{"socks5h://proxy1:1080", "socks5h://proxy2:1080"},
			MaxFailures:    3,
			FailureBackoff: 1 * time.Minute,
		},
	}

	mgr := New(log, cfg, observability.New())

	stats := mgr.GetStats()

	if len(stats) != 2 {
		t.Errorf("len(stats) = %d, want 2", len(stats))
	}

	for proxy, stat := range stats {
		if stat.State != ProxyStateAvailable {
			t.Errorf("proxy %s: State = %v, want ProxyStateAvailable", proxy, stat.State)
		}

		if stat.FailureCount != 0 {
			t.Errorf("proxy %s: FailureCount = %d, want 0", proxy, stat.FailureCount)
		}
	}
}

func TestStartHealthChecker_NoProxies(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:             nil,
			HealthCheckInterval: 1 * time.Second,
		},
	}

	mgr := New(log, cfg, observability.New())

	mgr.StartHealthChecker(t.Context())
}

func TestStartHealthChecker_ZeroInterval(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:             []string{testProxyURL},
			HealthCheckInterval: 0,
		},
	}

	mgr := New(log, cfg, observability.New())

	mgr.StartHealthChecker(t.Context())
}

func TestPickAndReport(t *testing.T) {
	t.Parallel()

	metrics := observability.New()
	cfg := &config.Config{
		Proxy: config.Proxy{
			Proxies:        []string{testProxyURL},
			MaxFailures:    1,
			FailureBackoff: time.Minute,
		},
	}

	mgr := New(slog.Default(), cfg, metrics)

	proxy, ok := mgr.Pick()
	if !ok || proxy != testProxyURL {
		t.Fatalf("Pick() = %q, %v", proxy, ok)
	}

	mgr.Report(proxy, errors.New("connection reset"))

	if _, ok := mgr.Pick(); ok {
		t.Error("Pick() should fail while the only proxy backs off")
	}

	if got := testutil.ToFloat64(metrics.ProxiesAvailable); got != 0 {
		t.Errorf("available gauge = %v, want 0", got)
	}

	mgr.Report(proxy, nil)

	if _, ok := mgr.Pick(); !ok {
		t.Error("Pick() should succeed after a successful report")
	}

	if got := testutil.ToFloat64(metrics.ProxyRequestsTotal.WithLabelValues(testProxyURL)); got != 2 {
		t.Errorf("proxy requests = %v, want 2", got)
	}

	mgr.Report("", errors.New("ignored"))
}
