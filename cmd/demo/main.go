// Command demo runs a small chi server with full otelware
// instrumentation: traced requests, bridged logs, and response
// trace propagation.
//
// Requires HONEYCOMB_API_KEY; see the package documentation for the
// full variable list.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jimmitjoo/otelware"
)

func main() {
	provider, err := otelware.NewFromEnv(
		otelware.WithResponsePropagation(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer provider.Shutdown(context.Background())

	logger := slog.New(provider.LogHandler(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	if err := provider.DisabledReason(); err != nil {
		logger.Warn("running without tracing", "reason", err.Error())
	}

	r := chi.NewRouter()
	r.Use(provider.Middleware())

	r.Get("/hello/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")

		ctx, span := provider.Start(req.Context(), "greet",
			otelware.String("greet.name", name),
		)
		defer span.End()

		slog.InfoContext(ctx, "greeting", "name", name)
		fmt.Fprintf(w, "hello, %s\n", name)
	})

	r.Get("/fail", func(w http.ResponseWriter, req *http.Request) {
		h := otelware.WrapError(func(w http.ResponseWriter, req *http.Request) error {
			return fmt.Errorf("handling /fail: %w", errors.New("downstream unavailable"))
		})
		if err := h(w, req); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err.Error())
	}
}
