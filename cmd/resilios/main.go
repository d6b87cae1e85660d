// Command resilios runs the Resilios gateway.
//
//	resilios [serve]                      run the HTTP and live gateway
//	resilios migrate                      apply database migrations and exit
//	resilios export -out chat_history.jsonl
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/resilios/internal/dotenv"
	"github.com/vango-go/resilios/pkg/gateway/config"
	gatewayserver "github.com/vango-go/resilios/pkg/gateway/server"
	"github.com/vango-go/resilios/pkg/store"
)

type appDeps struct {
	loadConfig   func() (config.Config, error)
	wire         func(context.Context, config.Config, *slog.Logger) (*services, error)
	openStore    func(context.Context, string) (*store.Store, error)
	newGateway   func(config.Config, gatewayserver.Deps, *slog.Logger) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAppDeps() appDeps {
	return appDeps{
		loadConfig: config.Load,
		wire:       wireServices,
		openStore:  store.Open,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, deps appDeps) error {
	if deps.wire == nil || deps.newGateway == nil {
		return errors.New("missing gateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	svc, err := deps.wire(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close services", "error", err)
		}
	}()

	gw := deps.newGateway(cfg, svc.deps, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"gemini", cfg.HasGemini(),
		"stripe", cfg.HasStripe(),
		"paypal", cfg.HasPayPal(),
		"workos", cfg.HasWorkOS(),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled; shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitLiveSessions(waitCtx) {
		n := gw.DisposeLiveSessions()
		logger.Warn("disposed live sessions after grace period", "count", n)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger, deps appDeps) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	st, err := deps.openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Migrate(ctx, logger)
}

func runExport(ctx context.Context, cfg config.Config, args []string, stdout io.Writer, logger *slog.Logger, deps appDeps) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("out", "chat_history.jsonl", "output file, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	st, err := deps.openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	w := stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := st.ExportJSONL(ctx, w)
	if err != nil {
		return err
	}
	logger.Info("exported messages", "count", n, "out", *out)
	return nil
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	if err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(stderr, "resilios: %v\n", err)
		return 1
	}

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if deps.loadConfig == nil {
		fmt.Fprintln(stderr, "resilios: missing loadConfig dependency")
		return 1
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "resilios: load config: %v\n", err)
		return 1
	}

	logger, closer := newLogger(cfg, stderr)
	defer closer.Close()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger, deps)
	case "migrate":
		err = runMigrate(ctx, cfg, logger, deps)
	case "export":
		err = runExport(ctx, cfg, args, stdout, logger, deps)
	default:
		fmt.Fprintf(stderr, "resilios: unknown command %q (want serve, migrate or export)\n", cmd)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "resilios: %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultAppDeps()))
}
