// overlay-editor is a headless operator console: it stages edits locally,
// publishes them to the overlay server, and drives the match countdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/overlay-sync/internal/client"
	"github.com/DoyleJ11/overlay-sync/internal/config"
	"github.com/DoyleJ11/overlay-sync/internal/console"
	"github.com/DoyleJ11/overlay-sync/internal/draft"
	"github.com/DoyleJ11/overlay-sync/internal/logging"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("overlay-editor", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	urlFlag := flags.String("url", "", "overlay server websocket URL (overrides OVERLAY_WS_URL)")
	hostFlag := flags.String("host", "", "overlay server host, dialed at the fallback port (overrides OVERLAY_HOST)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadEditor(*envFile)
	if err != nil {
		return err
	}
	if *urlFlag != "" {
		cfg.URL = *urlFlag
	}
	if *hostFlag != "" {
		cfg.Host = *hostFlag
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	url, err := client.ResolveURL(cfg.URL, cfg.Host, cfg.FallbackPort)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var ed *draft.Editor
	conn := client.New(url, func(doc []byte) error { return ed.Receive(doc) },
		client.WithLogger(log.Named("client")),
		client.WithReconnectDelay(cfg.ReconnectDelay),
		client.WithReadLimit(cfg.MaxMessageMB<<20),
	)
	ed = draft.New(overlay.Default(), conn, draft.WithLogger(log.Named("draft")))
	defer ed.Close()

	con := console.New(ed, httpServer{url: url, hc: &http.Client{Timeout: 30 * time.Second}}, os.Stdout, log.Named("console"))
	log.Info("overlay editor starting", zap.String("url", url))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(gctx) })
	g.Go(func() error { return ed.Run(gctx) })

	// Stdin reads cannot be interrupted, so the console is not part of the group.
	go func() {
		if err := con.Run(ctx, os.Stdin); err != nil {
			log.Error("console stopped", zap.Error(err))
		}
		cancel()
	}()

	return g.Wait()
}

// httpServer implements console.Server against the overlay server's HTTP API.
type httpServer struct {
	url string
	hc  *http.Client
}

func (s httpServer) Reset(ctx context.Context) (string, error) {
	return client.Reset(ctx, s.hc, s.url)
}

func (s httpServer) Upload(ctx context.Context, field, team, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return client.Upload(ctx, s.hc, s.url, field, team, filepath.Base(path), f)
}
