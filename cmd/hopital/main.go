package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hurttlocker/hopital/internal/config"
	"github.com/hurttlocker/hopital/internal/logging"
	"github.com/hurttlocker/hopital/internal/store"
)

const version = "0.3.0"

// Global flags, parsed before the subcommand.
var (
	globalConfigPath  string
	globalDBPath      string
	globalPostgresDSN string
	globalWorkers     string
	globalMaxFileSize string
	globalLogLevel    string
	globalLogFormat   string
	globalVerbose     bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var err error
	switch args[0] {
	case "serve", "mcp":
		err = runServe(args[1:])
	case "extract":
		err = runExtract(args[1:])
	case "ingest":
		err = runIngest(args[1:])
	case "list-dir", "ls":
		err = runListDir(args[1:])
	case "list":
		err = runList(args[1:])
	case "export":
		err = runExport(args[1:])
	case "status":
		err = runStatus(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("hopital %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags consumes the global flags (in "--flag value" or
// "--flag=value" form) that appear before the subcommand and returns the rest.
func parseGlobalFlags(args []string) []string {
	targets := map[string]*string{
		"--config":        &globalConfigPath,
		"--db":            &globalDBPath,
		"--pg":            &globalPostgresDSN,
		"--workers":       &globalWorkers,
		"--max-file-size": &globalMaxFileSize,
		"--log-level":     &globalLogLevel,
		"--log-format":    &globalLogFormat,
	}

	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(rest) > 0 {
			rest = append(rest, arg)
			continue
		}
		if arg == "--verbose" || arg == "-V" {
			globalVerbose = true
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if dst, ok := targets[name]; ok {
			if hasValue {
				*dst = value
			} else if i+1 < len(args) {
				*dst = args[i+1]
				i++
			}
			continue
		}
		rest = append(rest, arg)
	}
	return rest
}

// resolveConfig merges config file, environment and global flags, then
// installs the logger.
func resolveConfig() (config.ResolvedConfig, error) {
	logLevel := globalLogLevel
	if globalVerbose && logLevel == "" {
		logLevel = "debug"
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:     globalConfigPath,
		CLIDBPath:      globalDBPath,
		CLIPostgresDSN: globalPostgresDSN,
		CLIWorkers:     globalWorkers,
		CLIMaxFileSize: globalMaxFileSize,
		CLILogLevel:    logLevel,
		CLILogFormat:   globalLogFormat,
	})
	if err != nil {
		return cfg, err
	}
	logging.Setup(cfg.LogLevel.Value, cfg.LogFormat.Value, os.Stderr)
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.ResolvedConfig) (store.Store, error) {
	s, err := store.Open(ctx, store.StoreConfig{
		DBPath:      cfg.DBPath.Value,
		PostgresDSN: cfg.PostgresDSN.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	slog.Debug("store opened", "db", cfg.DBPath.Value, "postgres", cfg.PostgresDSN.Value != "")
	return s, nil
}

func printUsage() {
	fmt.Printf(`hopital %s: facility record extraction and ingestion

Usage:
  hopital [global flags] <command> [arguments]

Commands:
  serve                     Run the MCP server (stdio or streamable HTTP)
  extract <path>            Extract records from a directory or file, print JSON
  ingest <path>             Extract records and insert them into the HOPITAL table
  list-dir <dir>            List the entries of a directory
  list                      List stored facilities
  export --xlsx <file>      Export stored facilities to a spreadsheet
  status                    Show configuration sources, database status and counts
  version                   Print version

Extract / Ingest Flags:
  --mode pdf|structured|text   Source mode (default: structured)
  --pretty                     Indent JSON output (extract)
  --quiet                      No progress bar or summary

Serve Flags:
  --transport stdio|http       MCP transport (default: stdio)
  --addr <host:port>           Listen address for http (default: :8080)

List / Export Flags:
  --province <name>            Exact province filter
  --ville <name>               Exact city filter
  --limit <n>                  Maximum rows (list only)
  --json                       JSON output

Global Flags:
  --config <path>              Config file (default: ~/.hopital/config.yaml)
  --db <path>                  SQLite database (default: ~/.hopital/hopital.db)
  --pg <dsn>                   PostgreSQL DSN; overrides --db
  --workers <n>                Files processed concurrently (default: CPU count)
  --max-file-size <size>       Skip larger files, e.g. 10MB (default: 10MB)
  --log-level <level>          debug, info, warn, error (default: info)
  --log-format <fmt>           text or json (default: text on a terminal)
  -V, --verbose                Same as --log-level debug

Environment:
  HOPITAL_DB, HOPITAL_PG_DSN, HOPITAL_WORKERS, HOPITAL_MAX_FILE_SIZE,
  HOPITAL_LOG_LEVEL, HOPITAL_LOG_FORMAT, HOPITAL_MCP_TRANSPORT, HOPITAL_MCP_ADDR
  A .env file in the working directory is loaded first.
`, version)
}
