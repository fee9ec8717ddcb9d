package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the lifecycle orchestrator: reconciliation sweep, scheduler and metrics listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			// startup recovery: re-derive expiry/extension jobs from durable
			// rows, then keep self-healing on an interval
			if err := a.sweeper.Start(ctx, a.cfg.SweepInterval); err != nil {
				return err
			}
			defer a.sweeper.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := a.db.Ping(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok\n"))
			})
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					a.log.Error("metrics listener failed", "err", err)
				}
			}()

			a.log.Info("scooterd running",
				"metrics_addr", a.cfg.MetricsAddr,
				"reservation_ttl", a.cfg.ReservationTTL,
				"extension_interval", a.cfg.ExtensionInterval,
				"max_rental_duration", a.cfg.MaxRentalDuration)

			<-ctx.Done()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
