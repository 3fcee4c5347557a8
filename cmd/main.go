package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/internal/config"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/log"

	_ "github.com/zhangzqs/govfs/internal/httpfront"
	_ "github.com/zhangzqs/govfs/internal/webdavfront"
	_ "github.com/zhangzqs/govfs/pkg/vfs/all"
)

var (
	configFile string = ""
	dumpConfig bool   = false
)

func init() {
	flag.StringVar(&configFile, "config", configFile, "configuration file")
	flag.BoolVar(&dumpConfig, "dump-config", dumpConfig, "dump default configuration file and exit")
}

// runnable is satisfied by the front-end server components.
type runnable interface {
	ListenAndServe(ctx context.Context) error
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := config.NewDefaultConfig()

	if dumpConfig {
		if err := config.Dump(os.Stdout, conf); err != nil {
			slog.ErrorContext(ctx, "could not dump config file", log.Error(errors.WithStack(err)))
			os.Exit(1)
		}

		os.Exit(0)
	}

	if configFile != "" {
		if err := config.LoadFile(configFile, conf); err != nil {
			slog.ErrorContext(ctx, "could not parse config file", log.Error(errors.WithStack(err)), slog.String("file", configFile))
			os.Exit(1)
		}
	}

	logger := slog.New(log.ContextHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     conf.Logger.SlogLevel(),
			AddSource: true,
		}),
	})

	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(conf.Logger.SlogLevel())

	engine := blueprint.NewEngine()

	for _, component := range conf.Components {
		if err := engine.Load(component.Descriptor()); err != nil {
			slog.ErrorContext(ctx, "could not load component", log.Error(errors.WithStack(err)), slog.String("component", string(component.Name)))
			os.Exit(1)
		}
	}

	if err := engine.Build(); err != nil {
		slog.ErrorContext(ctx, "could not build component graph", log.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	// Registered before the teardown so that it runs after it.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	defer func() {
		if err := engine.Dispose(); err != nil {
			slog.ErrorContext(ctx, "could not dispose components", log.Error(errors.WithStack(err)))
		}
	}()

	done := make(chan error, len(conf.Components))
	servers := 0

	for _, name := range engine.Names() {
		component, err := engine.Component(name)
		if err != nil {
			slog.ErrorContext(ctx, "could not resolve component", log.Error(errors.WithStack(err)), slog.String("component", name))
			os.Exit(1)
		}

		server, ok := component.(runnable)
		if !ok {
			continue
		}

		servers++
		go func(name string, server runnable) {
			err := server.ListenAndServe(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "front-end stopped", log.Error(errors.WithStack(err)), slog.String("component", name))
			}
			done <- err
		}(name, server)
	}

	if servers == 0 {
		slog.ErrorContext(ctx, "no front-end component configured, nothing to serve")
		os.Exit(1)
	}

	// The first front-end to fail takes the process down; the deferred
	// engine teardown closes the rest in reverse order.
	if err := <-done; err != nil {
		exitCode = 1
	}
}
