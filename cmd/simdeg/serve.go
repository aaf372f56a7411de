package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/feed"
	"github.com/lccanon/simdeg/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	configPath string
	natsURL    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume observations from NATS JetStream, publish group snapshots and expose metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML configuration file (defaults when empty)")
	cmd.Flags().StringVar(&f.natsURL, "nats", nats.DefaultURL, "NATS server URL")

	return cmd
}

func runServe(ctx context.Context, f serveFlags) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg := simdeg.DefaultConfig()
	if f.configPath != "" {
		cfg, err = simdeg.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheus(promReg, cfg.Metrics.Namespace)

	registry, err := simdeg.NewRegistry(cfg, simdeg.WithLogger(log), simdeg.WithMetrics(collector))
	if err != nil {
		return err
	}

	nc, err := nats.Connect(f.natsURL,
		nats.Name("simdeg"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	consumer, err := feed.NewConsumer(nc, registry, cfg.Feed, feed.WithLogger(log), feed.WithMetrics(collector))
	if err != nil {
		return err
	}

	snapshots, err := feed.NewSnapshotPublisher(ctx, nc, registry, cfg.Feed, feed.WithLogger(log))
	if err != nil {
		return err
	}
	if err := snapshots.Start(ctx); err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = snapshots.Stop()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/pools", poolsHandler(registry))

	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop consumer", "error", err)
	}
	if err := snapshots.Stop(); err != nil {
		log.Error("failed to stop snapshot publisher", "error", err)
	}
	// Flush the final grouping so watchers see the state at shutdown.
	if err := snapshots.PublishNow(shutdownCtx); err != nil {
		log.Error("failed to publish final snapshots", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop metrics server", "error", err)
	}

	return serveErr
}

type poolView struct {
	Workers   int             `json:"workers"`
	Agreement simdeg.Snapshot `json:"agreement"`
	Collusion simdeg.Snapshot `json:"collusion"`
}

// poolsHandler reports the current grouping of every pool.
func poolsHandler(registry *simdeg.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		pools := make(map[string]poolView, registry.Len())

		var snapErr error
		registry.Range(func(pool string, tr *simdeg.Tracker) bool {
			view := poolView{Workers: tr.NumWorkers()}
			if view.Agreement, snapErr = tr.Snapshot(simdeg.KindAgreement); snapErr != nil {
				return false
			}
			if view.Collusion, snapErr = tr.Snapshot(simdeg.KindCollusion); snapErr != nil {
				return false
			}
			pools[pool] = view

			return true
		})
		if snapErr != nil {
			http.Error(w, snapErr.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pools)
	}
}
