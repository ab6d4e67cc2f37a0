package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/hurttlocker/hopital/internal/config"
	"github.com/hurttlocker/hopital/internal/extract"
	"github.com/hurttlocker/hopital/internal/ingest"
	"github.com/hurttlocker/hopital/internal/logging"
	hmcp "github.com/hurttlocker/hopital/internal/mcp"
	"github.com/hurttlocker/hopital/internal/store"
)

// parseCommandArgs splits args into positionals and known flags.
// Value flags accept "--flag value" and "--flag=value".
func parseCommandArgs(args []string, values map[string]*string, bools map[string]*bool) ([]string, error) {
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if dst, ok := values[name]; ok {
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag %s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			*dst = value
			continue
		}
		if dst, ok := bools[arg]; ok {
			*dst = true
			continue
		}
		return nil, fmt.Errorf("unknown flag: %s", arg)
	}
	return positional, nil
}

// extractArgs are shared by extract and ingest.
type extractArgs struct {
	path   string
	mode   ingest.Mode
	pretty bool
	quiet  bool
}

func parseExtractArgs(cmd string, args []string) (extractArgs, error) {
	var (
		out     extractArgs
		modeStr = string(ingest.ModeStructured)
	)
	positional, err := parseCommandArgs(args,
		map[string]*string{"--mode": &modeStr, "-m": &modeStr},
		map[string]*bool{"--pretty": &out.pretty, "--quiet": &out.quiet, "-q": &out.quiet},
	)
	if err != nil {
		return out, err
	}
	if len(positional) != 1 {
		return out, fmt.Errorf("usage: hopital %s <path> [--mode pdf|structured|text]", cmd)
	}
	out.path = positional[0]
	out.mode, err = ingest.ParseMode(modeStr)
	return out, err
}

func newProcessor(cfg config.ResolvedConfig, mode ingest.Mode, progress func(current, total int, file string)) (*ingest.Processor, error) {
	workers, err := cfg.WorkerCount()
	if err != nil {
		return nil, err
	}
	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}
	return ingest.NewProcessor(ingest.Options{
		Mode:        mode,
		Workers:     workers,
		MaxFileSize: maxSize,
		Logger:      slog.Default(),
		ProgressFn:  progress,
	}), nil
}

// runPipeline extracts path (directory batch or single file) with progress
// on stderr.
func runPipeline(ctx context.Context, cfg config.ResolvedConfig, a extractArgs) ([]extract.Result, error) {
	var (
		bar        *progress
		progressFn func(current, total int, file string)
	)
	if !a.quiet {
		bar = newProgress(os.Stderr, fmt.Sprintf("%s %s", a.mode, a.path))
	}
	if bar != nil {
		progressFn = bar.update
	}
	proc, err := newProcessor(cfg, a.mode, progressFn)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var results []extract.Result
	if info, err := os.Stat(a.path); err == nil && !info.IsDir() {
		results = proc.ProcessFile(ctx, a.path)
	} else {
		results = proc.Process(ctx, a.path)
	}
	bar.finish()

	if !a.quiet {
		printSummary(os.Stderr, ingest.Summarize(results), time.Since(start))
	}
	return results, nil
}

func runExtract(args []string) error {
	a, err := parseExtractArgs("extract", args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	results, err := runPipeline(context.Background(), cfg, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if a.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(results)
}

func runIngest(args []string) error {
	a, err := parseExtractArgs("ingest", args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	results, err := runPipeline(ctx, cfg, a)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	records, failures := extract.Split(results)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  skipped %s: %s\n", orDash(f.File), f.Error)
	}

	b := &store.Batch{Source: a.path, Mode: string(a.mode), Failures: len(failures)}
	n, err := s.InsertFacilities(ctx, b, records)
	if errors.Is(err, store.ErrNothingToInsert) {
		fmt.Println(store.ErrNothingToInsert.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}

	logging.FromContext(logging.WithBatchID(ctx, b.ID)).Info("batch ingested", "source", a.path, "inserted", n, "failures", len(failures))
	fmt.Println(colorize(os.Stdout, fmt.Sprintf("[green]%d record(s) inserted into HOPITAL[reset] (batch %s)", n, b.ID)))
	return nil
}

func runListDir(args []string) error {
	positional, err := parseCommandArgs(args, nil, nil)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: hopital list-dir <dir>")
	}
	names, err := ingest.ListDir(positional[0])
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

type listArgs struct {
	opts   store.ListOpts
	asJSON bool
	xlsx   string
}

func parseListArgs(cmd string, args []string) (listArgs, error) {
	var (
		out   listArgs
		limit string
	)
	values := map[string]*string{
		"--province": &out.opts.Province,
		"--ville":    &out.opts.Ville,
	}
	if cmd == "list" {
		values["--limit"] = &limit
	} else {
		values["--xlsx"] = &out.xlsx
	}
	positional, err := parseCommandArgs(args, values, map[string]*bool{"--json": &out.asJSON})
	if err != nil {
		return out, err
	}
	if len(positional) > 0 {
		return out, fmt.Errorf("unexpected argument: %s", positional[0])
	}
	if limit != "" {
		n, err := cast.ToIntE(limit)
		if err != nil || n <= 0 {
			return out, fmt.Errorf("--limit must be a positive integer, got %q", limit)
		}
		out.opts.Limit = n
	}
	if cmd == "export" {
		if out.xlsx == "" && !out.asJSON {
			return out, fmt.Errorf("usage: hopital export --xlsx <file> | --json")
		}
		out.opts.Limit = store.MaxListLimit
	}
	return out, nil
}

func runList(args []string) error {
	la, err := parseListArgs("list", args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	facilities, err := s.ListFacilities(ctx, la.opts)
	if err != nil {
		return err
	}
	if la.asJSON {
		return writeFacilitiesJSON(os.Stdout, facilities)
	}
	printFacilities(os.Stdout, facilities)
	return nil
}

func runExport(args []string) error {
	la, err := parseListArgs("export", args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	facilities, err := s.ListFacilities(ctx, la.opts)
	if err != nil {
		return err
	}
	if la.xlsx == "" {
		return writeFacilitiesJSON(os.Stdout, facilities)
	}
	if err := writeFacilitiesXLSX(la.xlsx, facilities); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d facilities to %s\n", len(facilities), la.xlsx)
	return nil
}

func runStatus(args []string) error {
	var asJSON bool
	if _, err := parseCommandArgs(args, nil, map[string]*bool{"--json": &asJSON}); err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"config": cfg.Redacted(),
			"status": status,
			"stats":  stats,
		})
	}
	printStatus(os.Stdout, cfg.Redacted(), status, stats)
	return nil
}

func runServe(args []string) error {
	var transport, addr string
	if _, err := parseCommandArgs(args, map[string]*string{"--transport": &transport, "--addr": &addr}, nil); err != nil {
		return err
	}
	// Serve flags ride on the same resolver so the config file and env apply.
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:      globalConfigPath,
		CLIDBPath:       globalDBPath,
		CLIPostgresDSN:  globalPostgresDSN,
		CLIWorkers:      globalWorkers,
		CLIMaxFileSize:  globalMaxFileSize,
		CLILogLevel:     globalLogLevel,
		CLILogFormat:    globalLogFormat,
		CLIMCPTransport: transport,
		CLIMCPAddr:      addr,
	})
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel.Value, cfg.LogFormat.Value, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	workers, _ := cfg.WorkerCount()
	maxSize, _ := cfg.MaxFileSizeBytes()
	srv := hmcp.NewServer(hmcp.ServerConfig{
		Store:       s,
		Version:     version,
		Workers:     workers,
		MaxFileSize: maxSize,
		Logger:      logger,
	})

	switch strings.ToLower(cfg.MCPTransport.Value) {
	case "http":
		httpSrv := server.NewStreamableHTTPServer(srv)
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.Start(cfg.MCPAddr.Value) }()
		logger.Info("mcp server listening", "transport", "http", "addr", cfg.MCPAddr.Value)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("shutting down mcp server")
			return httpSrv.Shutdown(shutdownCtx)
		}
	default:
		logger.Info("mcp server ready", "transport", "stdio")
		return server.ServeStdio(srv)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
