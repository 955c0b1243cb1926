// overlay-server holds the authoritative overlay document and fans every
// accepted change out to connected editors and broadcast pages.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/overlay-sync/internal/config"
	"github.com/DoyleJ11/overlay-sync/internal/httpapi"
	"github.com/DoyleJ11/overlay-sync/internal/hub"
	"github.com/DoyleJ11/overlay-sync/internal/logging"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
	"github.com/DoyleJ11/overlay-sync/internal/relay"
	"github.com/DoyleJ11/overlay-sync/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	flags := pflag.NewFlagSet("overlay-server", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadServer(*envFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister, err := openPersister(cfg)
	if err != nil {
		return err
	}
	st := store.Open(ctx, overlay.Default(), persister, log.Named("store"))
	defer func() { err = multierr.Append(err, st.Close()) }()

	var opts []hub.Option
	opts = append(opts, hub.WithLogger(log.Named("hub")))
	var rl *relay.NATSRelay
	if cfg.NATSURL != "" {
		rl, err = relay.Connect(cfg.NATSURL, cfg.NATSSubject, log.Named("relay"))
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, rl.Close()) }()
		opts = append(opts, hub.WithPublisher(rl))
	}

	// The hub outlives ctx so in-flight uploads and resets finish before Shutdown.
	h := hub.New(context.Background(), st, opts...)
	if rl != nil {
		if err := rl.Subscribe(func(doc []byte) { h.Send(ctx, hub.FromRelay{Data: doc}) }); err != nil {
			return err
		}
		log.Info("relaying through NATS", zap.String("subject", cfg.NATSSubject), zap.String("instance", rl.InstanceID()))
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, log.Named("http"), httpapi.Options{
			UploadDir:      cfg.UploadDir,
			MaxUploadBytes: cfg.MaxUploadMB << 20,
			OriginPatterns: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("persist", cfg.Persist))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websockets are not tracked by Shutdown; closing the hub
		// closes every outbox, which ends those handlers.
		if h.Send(sctx, hub.Shutdown{}) {
			select {
			case <-h.Done():
			case <-sctx.Done():
			}
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openPersister(cfg config.Server) (store.Persister, error) {
	switch cfg.Persist {
	case config.PersistSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	case config.PersistPostgres:
		return store.OpenPostgres(cfg.PostgresDSN)
	case config.PersistNone:
		return store.Nop{}, nil
	default:
		return store.NewFile(cfg.SnapshotPath), nil
	}
}
