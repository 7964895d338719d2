package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/conorfennell/habbit/internal/auth"
	"github.com/conorfennell/habbit/internal/config"
	"github.com/conorfennell/habbit/internal/habits"
	"github.com/conorfennell/habbit/internal/logger"
	"github.com/conorfennell/habbit/internal/secrets"
	"github.com/conorfennell/habbit/internal/storage"
	"github.com/conorfennell/habbit/internal/tablestore"
	"github.com/conorfennell/habbit/internal/web"
	"github.com/spf13/pflag"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "secret" {
		err = runSecret(os.Args[2:])
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "habbit: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Configuration and logging
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logs, err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logs.Close()

	// 2. Store and identity provider for the mode
	store, provider, err := open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// 3. Web server
	srv, err := web.NewServer(habits.NewService(store), provider, store, web.Options{
		SessionTTL:   cfg.Auth.SessionTTL,
		SecureCookie: cfg.Auth.SecureCookie,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Addr, "mode", cfg.Mode)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdown); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// open builds the store and identity provider for cfg.Mode.
func open(cfg *config.Config) (storage.Store, auth.Provider, error) {
	switch cfg.Mode {
	case config.ModeMemory:
		store := storage.NewMemoryStore()
		provider, err := auth.NewLocalProvider(store, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		slog.Warn("memory mode: habits and accounts are lost on restart")
		return store, provider, nil

	case config.ModeSQLite, config.ModePostgres:
		db, err := storage.Open(cfg.Mode, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		provider, err := auth.NewLocalProvider(db, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, provider, nil

	case config.ModeHosted:
		// Request timeouts are left to the hosted service.
		client := http.DefaultClient
		store := storage.NewTableStore(tablestore.New(cfg.Hosted.URL, cfg.Hosted.APIKey, client))
		provider := auth.NewHostedProvider(cfg.Hosted.AuthURL, cfg.Hosted.APIKey, client)
		return store, provider, nil
	}
	return nil, nil, fmt.Errorf("unsupported mode %q", cfg.Mode)
}

var secretKeys = []string{secrets.KeyHostedAPIKey, secrets.KeyJWTSecret, secrets.KeyDatabaseDSN}

// runSecret manages keyring entries: "secret set KEY" reads the value from
// stdin, "secret delete KEY" removes it.
func runSecret(args []string) error {
	usage := fmt.Errorf("usage: habbit secret set|delete <%s>", strings.Join(secretKeys, "|"))
	if len(args) != 2 {
		return usage
	}
	key := args[1]
	known := false
	for _, k := range secretKeys {
		known = known || k == key
	}
	if !known {
		return usage
	}

	switch args[0] {
	case "set":
		fmt.Fprintf(os.Stderr, "Value for %s: ", key)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read value: %w", err)
		}
		if err := secrets.Set(key, strings.TrimSpace(line)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Stored %s in the keyring.\n", key)
		return nil
	case "delete":
		if err := secrets.Delete(key); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Removed %s from the keyring.\n", key)
		return nil
	}
	return usage
}
