// Package mcp provides a Model Context Protocol server for hopital.
//
// It exposes the extraction pipeline (PDF, structured and text sources) and
// the facility store as MCP tools, and store statistics as an MCP resource.
// Supports stdio transport (Claude Desktop, Cursor) and streamable HTTP for
// remote access.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/hopital/internal/extract"
	"github.com/hurttlocker/hopital/internal/ingest"
	"github.com/hurttlocker/hopital/internal/logging"
	"github.com/hurttlocker/hopital/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store       store.Store // optional; store-backed tools are registered only when set
	Version     string      // version string for MCP server info
	Workers     int
	MaxFileSize int64
	Logger      *slog.Logger
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines and
// SQLite supports only one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all hopital tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"hopital",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerListDirTool(s)
	registerExtractTool(s, cfg, "hopital_extract_pdf", ingest.ModePDF,
		"Extract facility records (nom, email, telephone, province, ville, nombre_salle) from every PDF file in a directory. Email and phone are found anywhere in the text; other fields by line labels such as 'Nom:' or 'Ville:'. Unresolved fields are a single space. Unreadable files become {file, error} entries.")
	registerExtractTool(s, cfg, "hopital_extract_structured", ingest.ModeStructured,
		"Extract facility records from every CSV, TSV, JSON, YAML and XLSX file in a directory. Each row or object becomes one record; keys are matched case-insensitively against known aliases (e.g. hospital_name, city, rooms). Unreadable files become {file, error} entries.")
	registerExtractTextTool(s, cfg)

	if cfg.Store != nil {
		registerIngestTool(s, cfg)
		registerIngestTextTool(s, cfg)
		registerListTool(s, cfg.Store)
		registerStatusTool(s, cfg.Store)
		registerStatsResource(s, cfg.Store)
		registerBatchesResource(s, cfg.Store)
	}

	return s
}

func newProcessor(cfg ServerConfig, mode ingest.Mode) *ingest.Processor {
	return ingest.NewProcessor(ingest.Options{
		Mode:        mode,
		Workers:     cfg.Workers,
		MaxFileSize: cfg.MaxFileSize,
		Logger:      cfg.Logger,
	})
}

// --- Tools ---

func registerListDirTool(s *server.MCPServer) {
	tool := mcp.NewTool("hopital_list_dir",
		mcp.WithDescription("List the names of all entries in a directory, sorted. Use it to see which source files are available before extracting."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory path"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, err := req.RequireString("dir")
		if err != nil || strings.TrimSpace(dir) == "" {
			return mcp.NewToolResultError("dir is required"), nil
		}

		names, err := ingest.ListDir(dir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(names) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("directory %s is empty", dir)), nil
		}
		return mcp.NewToolResultText(strings.Join(names, "\n")), nil
	})
}

func registerExtractTool(s *server.MCPServer, cfg ServerConfig, name string, mode ingest.Mode, description string) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory containing the source files (not recursive)"),
		),
	)

	proc := newProcessor(cfg, mode)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, err := req.RequireString("dir")
		if err != nil || strings.TrimSpace(dir) == "" {
			return mcp.NewToolResultError("dir is required"), nil
		}
		return resultsJSON(proc.Process(ctx, dir))
	})
}

func registerExtractTextTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("hopital_extract_text",
		mcp.WithDescription("Extract one facility record per non-empty line of a text file (or of every .txt/.log file in a directory). Email and phone are taken out of the line; the rest becomes the name. Province and ville stay unresolved."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Text file or directory path"),
		),
	)

	proc := newProcessor(cfg, ingest.ModeText)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		return resultsJSON(runPath(ctx, proc, path))
	})
}

func registerIngestTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("hopital_ingest",
		mcp.WithDescription("Extract facility records from a directory (or a single file) and bulk-insert the successful ones into the HOPITAL table in one transaction. Returns the inserted count, the batch id and the per-file errors."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory or file path"),
		),
		mcp.WithString("mode",
			mcp.Description("Source mode: pdf, structured or text (default: structured)"),
			mcp.Enum("pdf", "structured", "text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcp.NewToolResultError("path is required"), nil
		}

		mode := ingest.ModeStructured
		if m, err := req.RequireString("mode"); err == nil && m != "" {
			mode, err = ingest.ParseMode(m)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		results := runPath(ctx, newProcessor(cfg, mode), path)

		dbMu.Lock()
		defer dbMu.Unlock()
		return ingestResults(ctx, cfg.Store, path, mode, results)
	})
}

func registerIngestTextTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("hopital_ingest_text",
		mcp.WithDescription("Read a text file with one facility per line, extract name/email/phone from each line and insert them into the HOPITAL table. Blank lines are skipped."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path of the text file"),
		),
	)

	proc := newProcessor(cfg, ingest.ModeText)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("file_path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcp.NewToolResultError("file_path is required"), nil
		}

		results := proc.ProcessFile(ctx, path)
		records, failures := extract.Split(results)
		if len(failures) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("ingestion error: %s", failures[0].Error)), nil
		}

		dbMu.Lock()
		defer dbMu.Unlock()

		b := &store.Batch{Source: path, Mode: string(ingest.ModeText)}
		n, err := cfg.Store.InsertFacilities(ctx, b, records)
		if errors.Is(err, store.ErrNothingToInsert) {
			return mcp.NewToolResultText(store.ErrNothingToInsert.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingestion error: %v", err)), nil
		}
		logging.FromContext(logging.WithBatchID(ctx, b.ID)).Info("text ingested", "file", filepath.Base(path), "inserted", n)
		return mcp.NewToolResultText(fmt.Sprintf("%d line(s) inserted into HOPITAL (batch %s)", n, b.ID)), nil
	})
}

func registerListTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("hopital_list",
		mcp.WithDescription("List stored facilities, oldest first. Province and ville filter by exact value."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("province",
			mcp.Description("Exact province filter"),
		),
		mcp.WithString("ville",
			mcp.Description("Exact city filter"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of rows (default: %d, max: %d)", store.DefaultListLimit, store.MaxListLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.ListOpts{}
		if p, err := req.RequireString("province"); err == nil {
			opts.Province = strings.TrimSpace(p)
		}
		if v, err := req.RequireString("ville"); err == nil {
			opts.Ville = strings.TrimSpace(v)
		}
		if l, err := req.RequireFloat("limit"); err == nil {
			opts.Limit = int(l)
		}

		facilities, err := st.ListFacilities(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}

		out := make([]facilityView, 0, len(facilities))
		for _, f := range facilities {
			out = append(out, newFacilityView(f))
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatusTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("hopital_db_status",
		mcp.WithDescription("Test the database connection and report the engine and its version."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		status, err := st.Status(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("connection error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(status, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Helpers ---

// runPath processes a directory as a batch, or a single file on its own.
func runPath(ctx context.Context, proc *ingest.Processor, path string) []extract.Result {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return proc.ProcessFile(ctx, path)
	}
	return proc.Process(ctx, path)
}

// ingestSummary is the payload of hopital_ingest.
type ingestSummary struct {
	BatchID  string                `json:"batch_id,omitempty"`
	Inserted int                   `json:"inserted"`
	Errors   []extract.ErrorRecord `json:"errors"`
	Message  string                `json:"message"`
}

func ingestResults(ctx context.Context, st store.Store, source string, mode ingest.Mode, results []extract.Result) (*mcp.CallToolResult, error) {
	records, failures := extract.Split(results)
	if failures == nil {
		failures = []extract.ErrorRecord{}
	}

	b := &store.Batch{Source: source, Mode: string(mode), Failures: len(failures)}
	n, err := st.InsertFacilities(ctx, b, records)
	summary := ingestSummary{Inserted: n, Errors: failures}
	switch {
	case errors.Is(err, store.ErrNothingToInsert):
		summary.Message = store.ErrNothingToInsert.Error()
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("ingestion error: %v", err)), nil
	default:
		summary.BatchID = b.ID
		summary.Message = fmt.Sprintf("%d record(s) inserted into HOPITAL", n)
		logging.FromContext(logging.WithBatchID(ctx, b.ID)).Info("batch ingested",
			"source", source, "mode", string(mode), "inserted", n, "failures", len(failures))
	}

	data, _ := json.MarshalIndent(summary, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func resultsJSON(results []extract.Result) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// facilityView is the JSON shape of a stored facility.
type facilityView struct {
	ID          int64  `json:"id"`
	Nom         string `json:"nom"`
	Email       string `json:"email"`
	Telephone   string `json:"telephone"`
	Province    string `json:"province"`
	Ville       string `json:"ville"`
	NombreSalle string `json:"nombre_salle"`
	File        string `json:"file"`
	BatchID     string `json:"batch_id"`
	ImportedAt  string `json:"imported_at"`
}

func newFacilityView(f *store.Facility) facilityView {
	return facilityView{
		ID:          f.ID,
		Nom:         f.Nom,
		Email:       f.Email,
		Telephone:   f.Telephone,
		Province:    f.Province,
		Ville:       f.Ville,
		NombreSalle: f.NombreSalle,
		File:        f.SourceFile,
		BatchID:     f.BatchID,
		ImportedAt:  f.ImportedAt.UTC().Format(time.RFC3339),
	}
}
