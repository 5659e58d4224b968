package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/api"
	"github.com/collectnet/collect/internal/app/collection"
	"github.com/collectnet/collect/internal/infra/logger"
	"github.com/collectnet/collect/internal/infra/observability"
	"github.com/collectnet/collect/internal/infra/sqlite"
)

// Daemon owns the long-lived resources of a collect process.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Service *collection.Service
	Log     *zap.Logger
}

// New opens the database and builds the service. The caller must Close.
func New(cfg Config) (*Daemon, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.StorageDir())
	if err != nil {
		log.Sync()
		return nil, err
	}

	svcCfg := collection.DefaultConfig()
	svcCfg.CommitTimeout = parseDuration(cfg.Service.CommitTimeout, svcCfg.CommitTimeout)
	if cfg.Service.EventsLimit > 0 {
		svcCfg.EventsLimit = cfg.Service.EventsLimit
	}
	tracer := observability.NewTracer(observability.TracerConfig{
		Enabled:  cfg.Trace.Enabled,
		MaxSpans: cfg.Trace.MaxSpans,
	})
	svc := collection.New(svcCfg, db, collection.WithLogger(log), collection.WithTracer(tracer))

	log.Info("daemon ready", zap.String("db", db.Path()))
	return &Daemon{Config: cfg, DB: db, Service: svc, Log: log}, nil
}

// Handler returns the HTTP handler for the API.
func (d *Daemon) Handler() http.Handler {
	srv := api.NewServer(d.Service)
	srv.SetTimeout(parseDuration(d.Config.API.Timeout, 30*time.Second))
	if d.Config.Metrics.Enabled {
		srv.EnableMetrics()
	}
	return srv.Handler()
}

// Serve runs the HTTP API until ctx is cancelled, then shuts down
// gracefully.
func (d *Daemon) Serve(ctx context.Context) error {
	hs := &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Log.Info("api listening", zap.String("addr", hs.Addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.Log.Info("api shutting down")
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close releases the database and flushes the logger.
func (d *Daemon) Close() error {
	err := d.DB.Close()
	d.Log.Sync()
	return err
}
