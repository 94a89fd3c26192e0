package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Run listens on the configured address and serves until ctx is canceled.
func (app *application) Run(ctx context.Context) error {
	addr := net.JoinHostPort(app.config.Server.Host, strconv.Itoa(app.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the HTTP server, the worker pool and the sweeper on ln until
// ctx is canceled or one of them fails, then shuts everything down. The
// archive keeps draining until the others have stopped so the terminal
// events produced during shutdown are still persisted.
func (app *application) Serve(ctx context.Context, ln net.Listener) error {
	defer app.cleanup()

	server := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	archiveCtx, stopArchive := context.WithCancel(context.Background())
	archiveDone := make(chan struct{})
	go func() {
		defer close(archiveDone)
		if app.archive == nil {
			return
		}
		if err := app.archive.Run(archiveCtx); err != nil {
			app.logger.Error("job archive stopped", "error", err)
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.pool.Run(gCtx)
	})

	g.Go(func() error {
		return app.sweeper.Run(gCtx)
	})

	g.Go(func() error {
		app.logger.Info("Starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	app.queue.Close()
	stopArchive()
	<-archiveDone

	if err != nil {
		return err
	}
	app.logger.Info("Server shutdown completed")
	return nil
}
