package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"xdao.co/acttoken/storage/grpcstore"
	"xdao.co/acttoken/storage/registry"

	_ "xdao.co/acttoken/storage/badgerstore"
	_ "xdao.co/acttoken/storage/memory"
	_ "xdao.co/acttoken/storage/sqlitestore"
)

func main() {
	fs := flag.NewFlagSet("acttoken-stored", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7707", "listen address")
	backend := fs.String("backend", "memory", "Storage backend name")
	sweepEvery := fs.Duration("sweep-interval", time.Minute, "How often to sweep expired records (0 disables)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")

	registry.RegisterFlags(fs, registry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	logger := newLogger(*logLevel)

	store, closeFn, err := registry.Open(*backend, registry.UsageDaemon)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{Backend: store, Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *sweepEvery > 0 {
		go sweepLoop(ctx, store, *sweepEvery, logger)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		s.GracefulStop()
	}()

	logger.Info("listening", "addr", lis.Addr().String(), "backend", *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sweepLoop(ctx context.Context, store interface {
	SweepExpired(context.Context) (int, error)
}, every time.Duration, logger *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.SweepExpired(ctx)
			if err != nil {
				logger.Warn("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired records", "removed", n)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
