// Package worker is the long-lived process bound to one Telegram account. It
// loads an immutable mapping snapshot, connects the account session, and runs
// the relay pipeline until the connection drops or the supervisor stops it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/config"
	"telegram-relay-go/internal/database"
	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/relay"
	"telegram-relay-go/internal/repository"
	"telegram-relay-go/internal/telegram"
)

// Options identify the account a worker serves; the supervisor passes them on
// the command line.
type Options struct {
	UserID      uint
	AccountID   *uint
	SessionPath string
}

// Run executes the worker until ctx is cancelled or a fatal error occurs.
// Recoverable delivery failures never reach here; any error returned means
// the process should exit non-zero and leave restart to the supervisor.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}
	if opts.SessionPath == "" {
		return errors.New("session path is required")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	repo := repository.New(db)

	mappings, err := repo.ListEnabledMappings(opts.UserID, opts.AccountID)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		logrus.Warnf("No enabled mappings for user_id=%d; worker will idle until restarted", opts.UserID)
	} else {
		logrus.Infof("Loaded %d enabled mapping(s) for user_id=%d", len(mappings), opts.UserID)
	}
	resolveAssetPaths(mappings, cfg.Worker.MediaAssetsDir)

	// Each worker runs against a private copy of the session file so two
	// processes never contend on the same sqlite session store.
	sessionPath, cleanup := privateSessionCopy(opts.SessionPath, cfg.Worker.DataDir)
	defer cleanup()

	session, err := telegram.Connect(cfg.Telegram.APIID, cfg.Telegram.APIHash, sessionPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Worker.MetricsAddr != "" {
		addr, stopMetrics, err := serveMetrics(registry, cfg.Worker.MetricsAddr)
		if err != nil {
			logrus.Warnf("Metrics endpoint unavailable: %v", err)
		} else {
			logrus.Infof("Metrics exposed at http://%s/metrics", addr)
			defer stopMetrics()
		}
	}
	handler := relay.NewHandler(opts.UserID, mappings, session, repo, repo, m)

	logrus.Infof("Worker running: user_id=%d session=%s", opts.UserID, sessionPath)
	err = session.Listen(ctx, handler.Handle)
	if errors.Is(err, context.Canceled) {
		logrus.Info("Worker stopped")
		return nil
	}
	return err
}

// serveMetrics exposes the worker's own counters on addr and returns the
// bound address with a shutdown func. Each worker binds its own port, so the
// default ephemeral-port address never collides across processes.
func serveMetrics(reg *prometheus.Registry, addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("Metrics server error: %v", err)
		}
	}()
	return ln.Addr().String(), func() { srv.Close() }, nil
}

// resolveAssetPaths anchors relative replacement-media paths at the
// configured assets directory.
func resolveAssetPaths(mappings []relay.Mapping, assetsDir string) {
	if assetsDir == "" {
		return
	}
	for i := range mappings {
		for j := range mappings[i].Transforms {
			path := mappings[i].Transforms[j].AssetPath
			if path == "" || filepath.IsAbs(path) {
				continue
			}
			mappings[i].Transforms[j].AssetPath = filepath.Join(assetsDir, path)
		}
	}
}

// privateSessionCopy copies the account session file into the data directory
// under a pid-scoped name, returning the path to use and a cleanup func. On
// any failure the original path is used and the failure is logged.
func privateSessionCopy(sessionPath, dataDir string) (string, func()) {
	noop := func() {}
	if dataDir == "" {
		return sessionPath, noop
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Warnf("Cannot create data dir %s, using shared session file: %v", dataDir, err)
		return sessionPath, noop
	}
	base := filepath.Base(sessionPath)
	copyPath := filepath.Join(dataDir, fmt.Sprintf("%s.pid%d", base, os.Getpid()))
	if err := copyFile(sessionPath, copyPath); err != nil {
		logrus.Warnf("Cannot copy session file, using shared session file: %v", err)
		return sessionPath, noop
	}
	return copyPath, func() {
		if err := os.Remove(copyPath); err != nil {
			logrus.Warnf("Failed to remove session copy %s: %v", copyPath, err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
