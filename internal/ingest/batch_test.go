package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hurttlocker/hopital/internal/extract"
)

func TestProcess_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")

	results := NewProcessor(Options{Mode: ModeStructured}).Process(context.Background(), dir)
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	f := results[0].Failure
	if f == nil {
		t.Fatal("expected an error record")
	}
	if f.File != "" {
		t.Errorf("directory-level error should have no file, got %q", f.File)
	}
	if !strings.Contains(f.Error, ErrDirectoryNotFound.Error()) || !strings.Contains(f.Error, dir) {
		t.Errorf("error = %q", f.Error)
	}

	data, _ := json.Marshal(results)
	if !strings.HasPrefix(string(data), `[{"error":`) {
		t.Errorf("json = %s", data)
	}
}

func TestProcess_NotADirectory(t *testing.T) {
	path := writeFile(t, t.TempDir(), "file.csv", "nom\nA\n")
	results := NewProcessor(Options{Mode: ModeStructured}).Process(context.Background(), path)
	if len(results) != 1 || results[0].Failure == nil {
		t.Fatalf("expected one error record, got %+v", results)
	}
}

func TestProcess_EmptyDirectory(t *testing.T) {
	for _, mode := range []Mode{ModePDF, ModeStructured, ModeText} {
		results := NewProcessor(Options{Mode: mode}).Process(context.Background(), t.TempDir())
		if results == nil || len(results) != 0 {
			t.Errorf("mode %s: expected empty non-nil slice, got %#v", mode, results)
		}
		data, _ := json.Marshal(results)
		if string(data) != "[]" {
			t.Errorf("mode %s: json = %s", mode, data)
		}
	}
}

func TestProcess_Structured(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "Hospital_Name,ORG,City,Rooms\nSaint-Luc,Groupe CHUM,Montréal,40\n,,,\n")
	writeFile(t, dir, "b.json", `[{"name": "Hôpital Général", "tel": "819 555 0100", "province": "Québec"}, "skip"]`)
	writeFile(t, dir, "c.json", `{"nom": `)
	writeFile(t, dir, "d.yaml", "nom: Clinique Nord\nnb_salle: 3\n")
	writeFile(t, dir, "e.txt", "not structured")
	if err := os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	results := NewProcessor(Options{Mode: ModeStructured}).Process(context.Background(), dir)
	if len(results) != 5 {
		for i, r := range results {
			data, _ := json.Marshal(r)
			t.Logf("[%d] %s", i, data)
		}
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	r0 := results[0].Record
	if r0 == nil || r0.Nom != "Saint-Luc" || r0.Ville != "Montréal" || r0.NombreSalle != "40" || r0.File != "a.csv" {
		t.Errorf("results[0] = %+v", r0)
	}

	// An all-empty CSV row still yields a record of placeholders.
	r1 := results[1].Record
	if r1 == nil || !r1.Blank() {
		t.Errorf("results[1] = %+v", r1)
	}

	r2 := results[2].Record
	if r2 == nil || r2.Nom != "Hôpital Général" || r2.Telephone != "819 555 0100" || r2.Province != "Québec" || r2.Email != extract.Placeholder {
		t.Errorf("results[2] = %+v", r2)
	}

	f3 := results[3].Failure
	if f3 == nil || f3.File != "c.json" {
		t.Errorf("results[3] should be c.json failure, got %+v", results[3])
	}

	r4 := results[4].Record
	if r4 == nil || r4.Nom != "Clinique Nord" || r4.NombreSalle != "3" || r4.File != "d.yaml" {
		t.Errorf("results[4] = %+v", r4)
	}
}

func TestProcess_TextLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "list.txt", "Dr. Martin Roy a@b.com 514-555-1234\n\n   \nCentre Hospitalier Régional\n")
	writeFile(t, dir, "data.csv", "nom\nignored\n")

	results := NewProcessor(Options{Mode: ModeText}).Process(context.Background(), dir)
	if len(results) != 2 {
		t.Fatalf("expected 2 records, got %d", len(results))
	}

	first := results[0].Record
	if first.Nom != "Dr. Martin Roy" || first.Email != "a@b.com" || first.Telephone != "514-555-1234" {
		t.Errorf("first = %+v", first)
	}
	if first.Province != extract.Placeholder || first.Ville != extract.Placeholder {
		t.Errorf("province/ville must stay unresolved: %+v", first)
	}
	if results[1].Record.Nom != "Centre Hospitalier Régional" {
		t.Errorf("second nom = %q", results[1].Record.Nom)
	}
}

func TestProcess_DeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	const n = 25
	for i := n - 1; i >= 0; i-- {
		writeFile(t, dir, fmt.Sprintf("f%02d.csv", i), fmt.Sprintf("nom\nH%02d-a\nH%02d-b\n", i, i))
	}

	var (
		mu    sync.Mutex
		calls []int
	)
	p := NewProcessor(Options{
		Mode:    ModeStructured,
		Workers: 4,
		ProgressFn: func(current, total int, file string) {
			mu.Lock()
			defer mu.Unlock()
			if total != n {
				t.Errorf("total = %d, want %d", total, n)
			}
			calls = append(calls, current)
		},
	})

	results := p.Process(context.Background(), dir)
	if len(results) != 2*n {
		t.Fatalf("expected %d results, got %d", 2*n, len(results))
	}
	for i := 0; i < n; i++ {
		for j, suffix := range []string{"a", "b"} {
			r := results[2*i+j].Record
			want := fmt.Sprintf("H%02d-%s", i, suffix)
			if r == nil || r.Nom != want {
				t.Fatalf("results[%d] = %+v, want nom %s", 2*i+j, r, want)
			}
		}
	}

	if len(calls) != n || calls[n-1] != n {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "nom\nA\n")
	writeFile(t, dir, "b.csv", "nom\nB\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewProcessor(Options{Mode: ModeStructured}).Process(ctx, dir)
	if len(results) != 2 {
		t.Fatalf("expected one result per file, got %d", len(results))
	}
	for _, r := range results {
		if r.Failure == nil || !strings.Contains(r.Failure.Error, context.Canceled.Error()) {
			t.Errorf("expected cancellation failure, got %+v", r)
		}
	}
}

func TestProcessFile_SizeLimit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "big.txt", strings.Repeat("Clinique a@b.com\n", 100))

	results := NewProcessor(Options{Mode: ModeText, MaxFileSize: 64}).ProcessFile(context.Background(), path)
	if len(results) != 1 || results[0].Failure == nil {
		t.Fatalf("expected one failure, got %+v", results)
	}
	if !strings.Contains(results[0].Failure.Error, "limit is 64 B") {
		t.Errorf("error = %q", results[0].Failure.Error)
	}
}

func TestProcessFile_Unsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scan.docx", "x")

	results := NewProcessor(Options{Mode: ModeStructured}).ProcessFile(context.Background(), path)
	if len(results) != 1 || results[0].Failure == nil {
		t.Fatalf("expected one failure, got %+v", results)
	}
	if !strings.Contains(results[0].Failure.Error, ErrImportUnavailable.Error()) {
		t.Errorf("error = %q", results[0].Failure.Error)
	}
}

func TestProcessFile_TextAnyExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hopitaux.dat", "liste.md"} {
		path := writeFile(t, dir, name, "Clinique Nord info@nord.ca 514-555-0101\n\nHopital Sud\n")

		results := NewProcessor(Options{Mode: ModeText}).ProcessFile(context.Background(), path)
		if len(results) != 2 {
			t.Fatalf("%s: expected 2 records, got %+v", name, results)
		}
		if !results[0].OK() || results[0].Record.Nom != "Clinique Nord" || results[0].Record.Email != "info@nord.ca" {
			t.Errorf("%s: first record = %+v", name, results[0])
		}
		if results[1].Record.Nom != "Hopital Sud" || results[1].Record.File != name {
			t.Errorf("%s: second record = %+v", name, results[1].Record)
		}
	}
}

func TestProcessFile_TextRejectsBinary(t *testing.T) {
	path := writeFile(t, t.TempDir(), "image.bin", "\xff\xfe\x00binary")

	results := NewProcessor(Options{Mode: ModeText}).ProcessFile(context.Background(), path)
	if len(results) != 1 || results[0].Failure == nil {
		t.Fatalf("expected one failure, got %+v", results)
	}
	if !strings.Contains(results[0].Failure.Error, ErrRead.Error()) {
		t.Errorf("error = %q", results[0].Failure.Error)
	}
}

func TestProcess_TextModeSkipsOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "Clinique A\n")
	writeFile(t, dir, "b.dat", "Clinique B\n")

	results := NewProcessor(Options{Mode: ModeText}).Process(context.Background(), dir)
	if len(results) != 1 || results[0].Record.File != "a.txt" {
		t.Fatalf("directory enumeration should keep only text extensions, got %+v", results)
	}
}

func TestSummarize(t *testing.T) {
	results := []extract.Result{
		extract.Success(extract.Normalize(nil, "a.csv")),
		extract.Success(extract.Normalize(nil, "a.csv")),
		extract.Failed("b.csv", fmt.Errorf("bad")),
	}
	s := Summarize(results)
	if s.Records != 2 || s.Failures != 1 || s.Files != 2 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "")
	writeFile(t, dir, "a.csv", "")

	names, err := ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 2 || names[0] != "a.csv" || names[1] != "b.pdf" {
		t.Fatalf("names = %v", names)
	}

	if _, err := ListDir(filepath.Join(dir, "missing")); err == nil || !strings.Contains(err.Error(), "directory not found") {
		t.Fatalf("expected directory not found, got %v", err)
	}
}
