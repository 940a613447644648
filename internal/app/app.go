package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"ccw/server/internal/config"
	servernet "ccw/server/internal/net"
	"ccw/server/internal/net/ws"
	"ccw/server/internal/observability"
	"ccw/server/internal/sim"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	loggingSinks "ccw/server/logging/sinks"
)

// OpenRouter builds the zap logger and the event router described by the
// logging section.
func OpenRouter(ctx context.Context, cfg *config.Config) (*logging.Router, *zap.Logger, error) {
	routerCfg := cfg.RouterConfig()
	zapLogger, err := loggingSinks.NewZapLogger(cfg.Logging.Format, routerCfg.MinimumSeverity)
	if err != nil {
		return nil, nil, err
	}
	sinks, err := loggingSinks.FromConfig(ctx, routerCfg, os.Stdout, zapLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("open log sinks: %w", err)
	}
	fallback := telemetry.StdLogger(telemetry.WrapZap(zapLogger))
	router, err := logging.NewRouter(routerCfg, logging.SystemClock{}, fallback, sinks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	return router, zapLogger, nil
}

// Run serves the simulation over HTTP and websockets until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	router, zapLogger, err := OpenRouter(ctx, cfg)
	if err != nil {
		return err
	}
	telemetryLogger := telemetry.WrapZap(zapLogger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		_ = zapLogger.Sync()
	}()

	shutdownTracing, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if terr := shutdownTracing(closeCtx); terr != nil {
			telemetryLogger.Printf("failed to flush traces: %v", terr)
		}
	}()

	metrics := telemetry.WrapMetrics(router.Metrics())
	services, err := BuildServices(ctx, cfg, ServiceDeps{
		Logger:    telemetryLogger,
		Publisher: router,
		Metrics:   metrics,
		Hooks: sim.LoopHooks{
			OnQueueWarning: func(length int) {
				telemetryLogger.Printf("[backpressure] command queue length=%d", length)
			},
		},
	})
	if err != nil {
		return err
	}
	defer services.Shutdown(context.Background())

	hub := ws.NewHub(services.Loop.Tick, telemetryLogger)
	hub.Attach(services.Machine)
	defer hub.CloseAll()

	wsHandler := ws.NewHandler(hub, services.Loop, ws.HandlerConfig{
		Logger:    telemetryLogger,
		Publisher: router,
	})
	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Logger:      telemetryLogger,
		Diagnostics: diagnostics(cfg, services, hub, router),
		WebSocket:   wsHandler.Handle,
	})

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go services.Loop.Run(loopCtx)

	srv := &http.Server{
		Addr:     cfg.Server.Addr,
		Handler:  handler,
		ErrorLog: telemetry.StdLogger(telemetryLogger),
	}
	serveErr := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func diagnostics(cfg *config.Config, services *Services, hub *ws.Hub, router *logging.Router) servernet.DiagnosticsSource {
	return servernet.DiagnosticsFunc(func() servernet.Diagnostics {
		return servernet.Diagnostics{
			Tick:            services.Loop.Tick(),
			TickRate:        cfg.Simulation.TickRate,
			ActiveCombos:    services.Machine.ActiveCount(),
			Combos:          servernet.CombosView(services.Machine.Snapshot()),
			BufferedActors:  services.Buffer.Len(),
			PendingCommands: services.Loop.Pending(),
			Sessions:        hub.SessionCount(),
			ClipSets:        services.Catalog.SetNames(),
			Metrics:         router.Metrics().Snapshot(),
			Router:          router.Stats(),
		}
	})
}
