package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v2"
	"github.com/xuri/excelize/v2"

	"github.com/hurttlocker/hopital/internal/config"
	"github.com/hurttlocker/hopital/internal/ingest"
	"github.com/hurttlocker/hopital/internal/logging"
	"github.com/hurttlocker/hopital/internal/store"
)

// colorize expands colorstring tags, stripping them when w is not a terminal.
func colorize(w io.Writer, s string) string {
	c := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !logging.IsTerminal(w),
		Reset:   true,
	}
	return c.Color(s)
}

// progress draws a bar on a terminal. The total is only known once the
// processor has listed the directory, so the bar is created on first update.
type progress struct {
	w    io.Writer
	desc string
	bar  *progressbar.ProgressBar
	seen int
}

// newProgress returns nil when w is not a terminal.
func newProgress(w io.Writer, desc string) *progress {
	if !logging.IsTerminal(w) {
		return nil
	}
	return &progress{w: w, desc: desc}
}

func (p *progress) update(current, total int, _ string) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	for ; p.seen < current; p.seen++ {
		_ = p.bar.Add(1)
	}
}

func (p *progress) finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(p.w)
}

func printSummary(w io.Writer, s ingest.Summary, elapsed time.Duration) {
	color := "green"
	if s.Failures > 0 {
		color = "yellow"
	}
	if s.Records == 0 && s.Failures > 0 {
		color = "red"
	}
	fmt.Fprintln(w, colorize(w, fmt.Sprintf(
		"[%s]%d record(s)[reset], %d failure(s) from %d file(s) in %s",
		color, s.Records, s.Failures, s.Files, elapsed.Round(time.Millisecond),
	)))
}

func writeFacilitiesJSON(w io.Writer, facilities []*store.Facility) error {
	if facilities == nil {
		facilities = []*store.Facility{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(facilities)
}

func printFacilities(w io.Writer, facilities []*store.Facility) {
	if len(facilities) == 0 {
		fmt.Fprintln(w, "No facilities stored.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tVILLE\tPROVINCE\tTELEPHONE\tEMAIL\tSALLES")
	for _, f := range facilities {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Nom, f.Ville, f.Province, f.Telephone, f.Email, f.NombreSalle)
	}
	_ = tw.Flush()
}

// exportHeaders follow the HOPITAL column names.
var exportHeaders = []interface{}{"NOM", "VILLE", "TELEPHONE", "EMAIL", "PROVINCE", "NOMBRE_SALLE", "SOURCE_FILE", "BATCH_ID", "IMPORTED_AT"}

const exportSheet = "HOPITAL"

func writeFacilitiesXLSX(path string, facilities []*store.Facility) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, fac := range facilities {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			fac.Nom, fac.Ville, fac.Telephone, fac.Email, fac.Province, fac.NombreSalle,
			fac.SourceFile, fac.BatchID, fac.ImportedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 40) // nom
	_ = f.SetColWidth(exportSheet, "B", "F", 18)
	_ = f.SetColWidth(exportSheet, "G", "I", 24)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func printStatus(w io.Writer, cfg config.ResolvedConfig, status *store.Status, stats *store.StoreStats) {
	fmt.Fprintln(w, colorize(w, "[bold]Configuration[reset]"))
	if cfg.ConfigPath != "" {
		fmt.Fprintf(w, "  config file: %s\n", cfg.ConfigPath)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kv := range []struct {
		name string
		v    config.ResolvedValue
	}{
		{"db", cfg.DBPath},
		{"postgres_dsn", cfg.PostgresDSN},
		{"workers", cfg.Workers},
		{"max_file_size", cfg.MaxFileSize},
		{"log_level", cfg.LogLevel},
		{"log_format", cfg.LogFormat},
		{"mcp_transport", cfg.MCPTransport},
		{"mcp_addr", cfg.MCPAddr},
	} {
		if kv.v.Value == "" {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\t(%s)\n", kv.name, kv.v.Value, kv.v.Source)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, colorize(w, "[bold]Database[reset]"))
	fmt.Fprintf(w, "  engine:      %s %s\n", status.Engine, status.Version)
	fmt.Fprintf(w, "  target:      %s\n", status.Target)
	fmt.Fprintf(w, "  size:        %s\n", humanize.Bytes(uint64(stats.DBSizeBytes)))
	fmt.Fprintf(w, "  facilities:  %s\n", humanize.Comma(int64(stats.Facilities)))
	fmt.Fprintf(w, "  batches:     %s\n", humanize.Comma(int64(stats.Batches)))

	if len(stats.ByProvince) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, colorize(w, "[bold]By province[reset]"))
		width := 0
		for _, pc := range stats.ByProvince {
			if len(pc.Province) > width {
				width = len(pc.Province)
			}
		}
		for _, pc := range stats.ByProvince {
			name := pc.Province
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(w, "  %-*s  %s\n", width, name, humanize.Comma(int64(pc.Count)))
		}
	}
}
