package sinks

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ccw/server/logging"
)

// FromConfig opens every sink named in cfg.EnabledSinks. Sinks opened before
// a failure are closed again.
func FromConfig(ctx context.Context, cfg logging.Config, stdout io.Writer, zapLogger *zap.Logger) (map[string]logging.Sink, error) {
	opened := make(map[string]logging.Sink, len(cfg.EnabledSinks))
	fail := func(err error) (map[string]logging.Sink, error) {
		for _, sink := range opened {
			sink.Close(ctx)
		}
		return nil, err
	}
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			opened[name] = NewConsole(stdout, cfg.Console)
		case "json":
			sink, err := OpenJSONFile(cfg.JSON)
			if err != nil {
				return fail(err)
			}
			opened[name] = sink
		case "zap":
			opened[name] = NewZap(zapLogger)
		case "sqlite":
			if cfg.SQLite.Path == "" {
				continue
			}
			sink, err := OpenSQLite(ctx, cfg.SQLite.Path)
			if err != nil {
				return fail(err)
			}
			opened[name] = sink
		case "memory":
			opened[name] = NewMemory()
		default:
			return fail(fmt.Errorf("unknown sink %q", name))
		}
	}
	return opened, nil
}
