package worker

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/relay"
	"telegram-relay-go/internal/rules"
)

func TestResolveAssetPaths(t *testing.T) {
	mappings := []relay.Mapping{
		{Transforms: []rules.Transform{
			{Kind: rules.TransformMedia, AssetPath: "promo.jpg"},
			{Kind: rules.TransformMedia, AssetPath: "/abs/banner.png"},
			{Kind: rules.TransformText, Find: "a", Replace: "b"},
		}},
	}

	resolveAssetPaths(mappings, "data/media_assets")

	assert.Equal(t, filepath.Join("data/media_assets", "promo.jpg"), mappings[0].Transforms[0].AssetPath)
	assert.Equal(t, "/abs/banner.png", mappings[0].Transforms[1].AssetPath, "absolute paths stay untouched")
	assert.Empty(t, mappings[0].Transforms[2].AssetPath)
}

func TestPrivateSessionCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "acc.session")
	require.NoError(t, os.WriteFile(src, []byte("session-bytes"), 0o600))

	dataDir := filepath.Join(dir, "data")
	path, cleanup := privateSessionCopy(src, dataDir)

	assert.NotEqual(t, src, path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "session-bytes", string(content))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPrivateSessionCopyFallsBackToOriginal(t *testing.T) {
	path, cleanup := privateSessionCopy("/nonexistent/acc.session", t.TempDir())
	defer cleanup()

	assert.Equal(t, "/nonexistent/acc.session", path, "copy failure falls back to the shared file")
}

func TestServeMetricsExposesRelayCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.EventsSeen.Inc()
	m.Relayed.Inc()

	addr, stop, err := serveMetrics(registry, "127.0.0.1:0")
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "telegram_relay_events_seen_total 1")
	assert.Contains(t, string(body), "telegram_relay_forward_successes_total 1")
}
