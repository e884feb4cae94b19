package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/pydsigner/coregent/internal/chatserver"
	"github.com/pydsigner/coregent/internal/netutil"
)

func configureLogger() *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func erringMain() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	logger := configureLogger()

	target := netutil.Target{Host: config.Host, Port: config.Port}
	server, err := chatserver.NewServer(target, config.MOTD, logger)
	if err != nil {
		return fmt.Errorf("could not construct chat server: %w", err)
	}
	logger.Info().Msgf("started chat server on %s", server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(gctx)
	})
	group.Go(func() error {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-signalChan:
			logger.Info().Msgf("received %+v signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("chat server run failed: %w", err)
	}
	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
