package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/tiermem/internal/jobs"
	"github.com/bowerhall/tiermem/internal/logger"
	"github.com/bowerhall/tiermem/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run maintenance jobs and expose metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := a.scheduler()
		if err != nil {
			return err
		}
		sched.Start()

		for name, next := range sched.Next() {
			logger.Info("job scheduled", "job", name, "next", next)
		}

		srv := &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           a.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("metrics server started", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()

		<-cmd.Context().Done()
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		sched.Stop(ctx)

		return nil
	},
}

func (a *app) scheduler() (*jobs.Scheduler, error) {
	jc := a.cfg.Jobs

	sched, err := jobs.New(a.cfg.Timezone, jc.MaxLoad)
	if err != nil {
		return nil, err
	}

	list := []jobs.Job{
		{
			Name:     "sweep",
			Schedule: jc.SweepSchedule,
			Timeout:  time.Hour,
			Run: func(ctx context.Context) (int, error) {
				return a.mem.Episodic().SweepExpired(ctx, a.cfg.Memory.SweepBatchSize)
			},
		},
		{
			Name:     "dedup",
			Schedule: jc.DedupSchedule,
			Timeout:  time.Hour,
			Run:      a.mem.Deduplicator().RunAll,
		},
		{
			Name:     "backfill",
			Schedule: jc.BackfillSchedule,
			Timeout:  30 * time.Minute,
			Run: func(ctx context.Context) (int, error) {
				return a.mem.Backfill(ctx, jc.BackfillBatch)
			},
		},
	}

	if a.cfg.Storage.Enabled && jc.BackupSchedule != "" {
		list = append(list, jobs.Job{
			Name:     "backup",
			Schedule: jc.BackupSchedule,
			Timeout:  time.Hour,
			Run: func(ctx context.Context) (int, error) {
				if _, err := a.uploadBackup(ctx); err != nil {
					return 0, err
				}
				return 1, nil
			},
		})
	}

	for _, job := range list {
		if err := sched.Add(job); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "memory unavailable", http.StatusServiceUnavailable)
			return
		}
		if a.cfg.Storage.Enabled {
			sc, err := a.storage()
			if err != nil || !sc.Healthy(r.Context()) {
				http.Error(w, "object storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	return mux
}
