package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/microlearn/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "microlearn",
		Short:        "Microlearning study tool: pre-quiz, AI lesson, post-quiz",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, initDBCmd(), registerCmd(), importQuizCmd(), resultsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `microlearn --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addDBFlags(f *pflag.FlagSet) {
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "microlearn.db", "SQLite database path")
	f.String("db-host", "localhost", "Postgres host")
	f.Int("db-port", 5432, "Postgres port")
	f.String("db-name", "microlearn", "Postgres database name")
	f.String("db-user", "", "Postgres user")
	f.String("db-password", "", "Postgres password (or set MICROLEARN_DB_PASSWORD)")
	f.String("db-sslmode", "", "Postgres sslmode (disable, require, verify-full, ...)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MICROLEARN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("microlearn")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/microlearn")
	v.AddConfigPath("/etc/microlearn")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func storeConfig(v *viper.Viper) store.Config {
	return store.Config{
		Driver:   strings.ToLower(v.GetString("db-driver")),
		Path:     v.GetString("db"),
		Host:     v.GetString("db-host"),
		Port:     v.GetInt("db-port"),
		Name:     v.GetString("db-name"),
		User:     v.GetString("db-user"),
		Password: v.GetString("db-password"),
		SSLMode:  v.GetString("db-sslmode"),
	}
}

func openStore(v *viper.Viper) (*store.Store, error) {
	cfg := storeConfig(v)
	db, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("database opened", "driver", cfg.Driver)
	return db, nil
}

func initDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the database tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			db, err := openStore(viperForCmd(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			// Open already migrated; running it again shows it is idempotent.
			if err := db.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("database tables ready")
			return nil
		},
	}
	addDBFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}
