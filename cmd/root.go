package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mishka251/goszakupki-parces/internal/config"
	"github.com/mishka251/goszakupki-parces/internal/db"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
)

var (
	// Config flags - bound in init()
	logFormat string
	logLevel  string
	logOutput string
	flagCfg   = config.Default()

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "goszakupki",
	Short: "Ingest public procurement notifications and measure the share of Russian software.",
	Long: `goszakupki walks the regional notification archives on the public procurement
FTP mirror, keeps the software purchases selected by a classifier taxonomy, checks
each product against the Russian software registry and stores the result in DuckDB.

Typical flow:
  goszakupki taxonomy load okpd2_software.csv
  goszakupki regions --remote
  goszakupki ingest Moskva Adygeja_Resp
  goszakupki stats --region все --months 12`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized.", "level", level.String(), "format", logFormat, "output", logOutput)

		// --- 2. Validate Config ---
		appConfig = flagCfg
		if err := appConfig.Validate(); err != nil {
			return err
		}
		rootLogger.Debug("Configuration loaded.", slog.String("db_path", appConfig.DbPath), slog.String("ftp_host", appConfig.FTPHost), slog.String("classifier", appConfig.Classifier))

		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}
		var err error
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database ready.", slog.String("path", appConfig.DbPath))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly.", "error", err)
			}
		}
		return nil
	},
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(taxonomyCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(inspectCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagCfg.DbPath, "db-path", "d", flagCfg.DbPath, "Path to DuckDB database file (:memory: for in-memory)")
	pf.StringVarP(&flagCfg.OutputDir, "output-dir", "o", flagCfg.OutputDir, "Directory for exported Parquet files")
	pf.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	pf.StringVar(&flagCfg.FTPHost, "ftp-host", flagCfg.FTPHost, "FTP server host:port")
	pf.StringVar(&flagCfg.FTPUser, "ftp-user", flagCfg.FTPUser, "FTP user")
	pf.StringVar(&flagCfg.FTPPassword, "ftp-password", flagCfg.FTPPassword, "FTP password")
	pf.DurationVar(&flagCfg.FTPTimeout, "ftp-timeout", flagCfg.FTPTimeout, "Timeout for each FTP operation")
	pf.StringVar(&flagCfg.RegionsRoot, "regions-root", flagCfg.RegionsRoot, "Remote directory listing the regions")
	pf.StringVar(&flagCfg.RegionPath, "region-path", flagCfg.RegionPath, "Remote notification directory pattern, {region} is substituted")

	pf.StringVar(&flagCfg.RegistryURL, "registry-url", flagCfg.RegistryURL, "Russian software registry search page")
	pf.DurationVar(&flagCfg.VerifyTimeout, "verify-timeout", flagCfg.VerifyTimeout, "Timeout for one registry lookup")
	pf.DurationVar(&flagCfg.VerifyInterval, "verify-interval", flagCfg.VerifyInterval, "Minimum spacing between registry lookups (0 disables)")

	pf.StringVar(&flagCfg.Classifier, "classifier", flagCfg.Classifier, "Classifier group used as the purchase filter")
	pf.IntVar(&flagCfg.MaxDepth, "max-depth", flagCfg.MaxDepth, "Maximum nesting depth of archives")
	pf.Int64Var(&flagCfg.MaxExtracted, "max-extracted", flagCfg.MaxExtracted, "Maximum decompressed bytes per source archive")
	pf.IntVar(&flagCfg.Prefetch, "prefetch", flagCfg.Prefetch, "Archives retrieved ahead of processing")

	rootCmd.Version = "0.3.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}

func getStore() *db.Store {
	return db.NewStore(getDB(), getLogger())
}
