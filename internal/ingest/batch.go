package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/hopital/internal/extract"
)

// Options configures a Processor.
type Options struct {
	Mode        Mode
	Workers     int   // concurrent files, default runtime.NumCPU()
	MaxFileSize int64 // bytes, default 10MB
	Logger      *slog.Logger
	ProgressFn  func(current, total int, file string)
}

// Processor runs the read → extract → normalize pipeline over files.
// It holds no per-batch state and is safe for concurrent use.
type Processor struct {
	opts    Options
	readers []Reader
	rows    *extract.RowExtractor
	text    *extract.TextExtractor
}

// NewProcessor builds a processor for opts.Mode with the built-in alias tables.
func NewProcessor(opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		opts:    opts,
		readers: Readers(opts.Mode),
		rows:    extract.NewRowExtractor(extract.StructuredAliases),
		text:    extract.NewTextExtractor(extract.LabelAliases),
	}
}

// Mode returns the processor's source mode.
func (p *Processor) Mode() Mode {
	return p.opts.Mode
}

// Eligible reports whether the processor's mode accepts path.
func (p *Processor) Eligible(path string) bool {
	return p.readerFor(path) != nil
}

func (p *Processor) readerFor(path string) Reader {
	for _, r := range p.readers {
		if r.CanHandle(path) {
			return r
		}
	}
	return nil
}

// Process handles every eligible regular file directly under dir and returns
// the results in lexicographic file order. It never fails: a missing
// directory yields a single error record, a bad file yields an error record
// in its slot.
func (p *Processor) Process(ctx context.Context, dir string) []extract.Result {
	start := time.Now()
	log := p.opts.Logger.With("dir", dir, "mode", string(p.opts.Mode))

	files, err := p.eligibleFiles(dir)
	if err != nil {
		log.Warn("batch aborted", "error", err)
		return []extract.Result{{Failure: &extract.ErrorRecord{Error: err.Error()}}}
	}

	slots := make([][]extract.Result, len(files))
	var (
		progressMu sync.Mutex
		done       int
	)

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				slots[i] = []extract.Result{extract.Failed(filepath.Base(path), err)}
			} else {
				slots[i] = p.ProcessFile(ctx, path)
			}
			if p.opts.ProgressFn != nil {
				progressMu.Lock()
				done++
				p.opts.ProgressFn(done, len(files), filepath.Base(path))
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]extract.Result, 0, len(files))
	for _, s := range slots {
		out = append(out, s...)
	}

	sum := Summarize(out)
	log.Info("batch complete",
		"files", len(files),
		"records", sum.Records,
		"failures", sum.Failures,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return out
}

// eligibleFiles lists the regular files in dir accepted by the mode, sorted.
// Symlinks are followed.
func (p *Processor) eligibleFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !p.Eligible(path) {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// ProcessFile runs the pipeline on a single file. Failures, including a
// panic inside a parser, come back as one error record tagged with the
// file name.
func (p *Processor) ProcessFile(ctx context.Context, path string) (results []extract.Result) {
	name := filepath.Base(path)
	log := p.opts.Logger.With("file", name)

	fail := func(err error) []extract.Result {
		log.Warn("file skipped", "error", err)
		return []extract.Result{extract.Failed(name, err)}
	}

	defer func() {
		if r := recover(); r != nil {
			results = fail(fmt.Errorf("%w: %s: %v", ErrRead, name, r))
		}
	}()

	reader := p.readerFor(path)
	if reader == nil && p.opts.Mode == ModeText {
		// A file named explicitly is read as text whatever its extension;
		// the UTF-8 check rejects binaries.
		reader = &TextReader{}
	}
	if reader == nil {
		return fail(fmt.Errorf("%w: %s: no %s reader for this file type", ErrImportUnavailable, name, p.opts.Mode))
	}

	fi, err := os.Stat(path)
	if err != nil {
		return fail(readErr(path, err))
	}
	if fi.Size() > p.opts.MaxFileSize {
		return fail(readErr(path, fmt.Errorf("file is %s, limit is %s",
			humanize.Bytes(uint64(fi.Size())), humanize.Bytes(uint64(p.opts.MaxFileSize)))))
	}

	content, err := reader.Read(ctx, path)
	if err != nil {
		return fail(err)
	}

	results = p.extract(content, name)
	log.Debug("file processed", "records", len(results))
	return results
}

// extract picks the strategy from the content shape.
func (p *Processor) extract(c *Content, name string) []extract.Result {
	switch c.Kind {
	case KindText:
		return []extract.Result{extract.Success(extract.Normalize(p.text.Extract(c.Text), name))}

	case KindRows:
		out := make([]extract.Result, 0, len(c.Rows))
		for _, row := range c.Rows {
			out = append(out, extract.Success(extract.Normalize(p.rows.Extract(row), name)))
		}
		return out

	case KindLines:
		out := make([]extract.Result, 0, len(c.Lines))
		for _, line := range c.Lines {
			partial, ok := extract.ParseLine(line)
			if !ok {
				continue
			}
			out = append(out, extract.Success(extract.Normalize(partial, name)))
		}
		return out
	}
	return nil
}

// Summary counts the outcome of a batch.
type Summary struct {
	Records  int
	Failures int
	Files    int // distinct files that produced at least one result
}

// Summarize counts records, failures and files in results.
func Summarize(results []extract.Result) Summary {
	var s Summary
	files := map[string]struct{}{}
	for _, r := range results {
		switch {
		case r.Record != nil:
			s.Records++
			files[r.Record.File] = struct{}{}
		case r.Failure != nil:
			s.Failures++
			if r.Failure.File != "" {
				files[r.Failure.File] = struct{}{}
			}
		}
	}
	s.Files = len(files)
	return s
}

// ListDir returns the names of all entries in dir, sorted.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
