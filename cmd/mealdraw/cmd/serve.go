package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/mealdraw/devserver"
	"github.com/jmcleod/mealdraw/session"
)

var (
	serveAddr    string
	serveLatency time.Duration
	serveUsers   []string
)

// userSpec is a --user flag value: name:password[:role].
type userSpec struct {
	username string
	password string
	role     session.Role
}

func parseUserSpec(s string) (userSpec, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return userSpec{}, fmt.Errorf("invalid --user %q (want name:password[:role])", s)
	}
	u := userSpec{username: parts[0], password: parts[1], role: session.RoleMember}
	if len(parts) == 3 {
		role, err := session.ParseRole(parts[2])
		if err != nil {
			return userSpec{}, fmt.Errorf("invalid --user %q: %w", s, err)
		}
		u.role = role
	}
	return u, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the in-memory development backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		latency := cfg.Server.Latency
		if cmd.Flags().Changed("latency") {
			latency = serveLatency
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		logger := cfg.Log.NewLogger(os.Stderr)
		srv := devserver.New(
			devserver.WithLogger(logger),
			devserver.WithLatency(latency),
			devserver.WithGatherer(reg),
		)
		for _, spec := range serveUsers {
			u, err := parseUserSpec(spec)
			if err != nil {
				return err
			}
			srv.AddUser(u.username, u.password, u.role, "")
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", srv.Router())

		server := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second + latency,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting development backend on %s (%d users, latency %s)...\n", addr, len(serveUsers), latency)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().DurationVar(&serveLatency, "latency", 0, "Artificial delay added to every API response")
	serveCmd.Flags().StringArrayVar(&serveUsers, "user", []string{"demo:demo:member", "admin:admin:admin"}, "Account to create, as name:password[:role] (repeatable)")
}
