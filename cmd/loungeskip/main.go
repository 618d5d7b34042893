package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loungeskip/loungeskip/internal/config"
	"github.com/loungeskip/loungeskip/internal/db"
	"github.com/loungeskip/loungeskip/internal/runtime"
	"github.com/loungeskip/loungeskip/internal/server"
	"github.com/loungeskip/loungeskip/internal/stats"
	"github.com/loungeskip/loungeskip/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("MAIN: load config: %v", err)
	}
	if cfg.Debug {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
		logger.Printf("MAIN: debug logging enabled")
	}

	dbPair, err := db.Init(cfg.DBPath())
	if err != nil {
		logger.Fatalf("MAIN: open database: %v", err)
	}
	defer dbPair.Close()

	st := store.New(dbPair, logger)
	if err := st.ImportSeed(cfg.DataDir); err != nil {
		logger.Printf("MAIN: seed import: %v", err)
	}
	recorder := stats.NewRecorder(dbPair, logger)

	rt, err := runtime.New(cfg, st, recorder, logger)
	if err != nil {
		logger.Fatalf("MAIN: build runtime: %v", err)
	}

	handler, shutdownHandler := server.NewHandler(cfg, st, recorder, rt, logger)
	defer shutdownHandler()

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.APIHost, cfg.APIPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second signal during shutdown exits immediately.
	go func() {
		<-ctx.Done()
		stop()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Printf("MAIN: forced exit")
		os.Exit(1)
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return rt.Run(groupCtx)
	})

	group.Go(func() error {
		logger.Printf("MAIN: api listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("MAIN: %v", err)
	}
	logger.Printf("MAIN: bye")
}
