package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/libraryterminal/archive/internal/auth"
	"github.com/libraryterminal/archive/internal/config"
	"github.com/libraryterminal/archive/internal/database"
	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/logging"
	"github.com/libraryterminal/archive/internal/server"
	"github.com/libraryterminal/archive/internal/store"
	"github.com/libraryterminal/archive/internal/terminal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archive-terminal",
		Short: "Shared archive terminal service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Run the archive terminal interactively against the local store",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd.Context())
		},
	}
	rootCmd.AddCommand(replCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if strings.TrimSpace(appConfig.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	documents, err := store.New(store.Config{
		Database:   db,
		Clock:      time.Now,
		IDProvider: store.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	goldAndShop, err := economy.New(economy.Config{
		Store:  documents,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        "archive-terminal",
		Audience:      "archive-api",
		TokenTTL:      appConfig.SessionTTL,
	})

	events := server.NewEventDispatcher()
	sessions, err := server.NewSessionManager(server.SessionManagerConfig{
		Store:      documents,
		Economy:    goldAndShop,
		IDProvider: store.NewUUIDProvider(),
		Events:     events,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions: sessions,
		Tokens:   tokenIssuer,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runRepl reads stdin lines and dispatches each on its own goroutine, so a
// slow store call never blocks further input. Completions interleave in
// whatever order they resolve, matching the shared-archive model where the
// store, not the terminal, is the point of coordination.
func runRepl(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	documents, err := store.New(store.Config{
		Database:   db,
		Clock:      time.Now,
		IDProvider: store.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	goldAndShop, err := economy.New(economy.Config{
		Store:  documents,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	session, err := terminal.NewSession(terminal.Config{
		Store:   documents,
		Economy: goldAndShop,
		Clock:   time.Now,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	banner, err := session.InitialLoad(ctx)
	if err != nil {
		return err
	}
	fmt.Println(banner)

	var pending sync.WaitGroup
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(trimmed, "clear") {
			// Screen clearing belongs to the surface, not the engine.
			fmt.Print("\x1b[2J\x1b[H")
		}
		pending.Add(1)
		go func(input string) {
			defer pending.Done()
			output, err := session.Dispatch(ctx, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "store failure: %v\n", err)
				return
			}
			if output != "" {
				fmt.Println(output)
			}
		}(line)
		if strings.EqualFold(trimmed, "exit") {
			break
		}
		fmt.Print("> ")
	}
	pending.Wait()
	return scanner.Err()
}
