package campaign

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/ddmin"
)

// Contract: fingerprints depend on the target's base name and the reproducer bytes only.
func TestFingerprint(t *testing.T) {
	fp1 := Fingerprint("/usr/bin/parse", []byte("BUG"))
	fp2 := Fingerprint("/opt/build/parse", []byte("BUG"))
	if fp1 != fp2 {
		t.Errorf("same base name and bytes should match: %q != %q", fp1, fp2)
	}

	if fp3 := Fingerprint("/usr/bin/lex", []byte("BUG")); fp1 == fp3 {
		t.Errorf("different targets should differ: %q == %q", fp1, fp3)
	}
	if fp4 := Fingerprint("/usr/bin/parse", []byte("BUG!")); fp1 == fp4 {
		t.Errorf("different reproducers should differ: %q == %q", fp1, fp4)
	}

	// The separator keeps target and bytes from running together.
	if Fingerprint("ab", []byte("c")) == Fingerprint("a", []byte("bc")) {
		t.Error("target/bytes boundary is ambiguous")
	}

	if len(fp1) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(fp1))
	}
}

func TestRunResultDuration(t *testing.T) {
	start := time.Now()
	result := &RunResult{StartTime: start, EndTime: start.Add(5 * time.Second)}

	if got := result.Duration(); got != 5*time.Second {
		t.Errorf("Duration() = %v, want %v", got, 5*time.Second)
	}
}

func TestRunResultReduction(t *testing.T) {
	tests := []struct {
		name   string
		result RunResult
		want   float64
	}{
		{"not reproduced", RunResult{OriginalSize: 10}, 0},
		{"empty input", RunResult{Reproduced: true}, 0},
		{"to a quarter", RunResult{Reproduced: true, OriginalSize: 8, Minimized: []byte("ab")}, 0.75},
		{"unchanged", RunResult{Reproduced: true, OriginalSize: 3, Minimized: []byte("abc")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Reduction(); got != tt.want {
				t.Errorf("Reduction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteReadRunArtifact(t *testing.T) {
	tmpDir := t.TempDir()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	job := &Job{
		Name:        "parser",
		Target:      "/bin/parse",
		Args:        []string{"--strict"},
		InputPath:   "/crashes/id-1",
		InputMode:   InputStdin,
		Parallelism: 4,
		Compression: compression.ZstdCompression,
	}
	result := &RunResult{
		Job:            job,
		RunID:          "run-1",
		RunDir:         tmpDir,
		StartTime:      start,
		EndTime:        start.Add(1500 * time.Millisecond),
		Reproduced:     true,
		OriginalSize:   9,
		Minimized:      []byte("BUG"),
		Stats:          ddmin.Stats{OracleCalls: 13, Failing: 2, Passing: 11, MaxDepth: 2},
		Fingerprint:    "0123456789abcdef",
		ReproducerPath: filepath.Join(tmpDir, "reproducer.bin.zst"),
		Steps:          []ddmin.Probe{{Depth: 0, Split: 2, Size: 9, Fails: true}},
	}

	if err := WriteRunArtifact(result); err != nil {
		t.Fatalf("WriteRunArtifact: %v", err)
	}

	artifact, err := ReadRunArtifact(tmpDir)
	if err != nil {
		t.Fatalf("ReadRunArtifact: %v", err)
	}

	if artifact.RunID != "run-1" || artifact.Job != "parser" || artifact.Target != "/bin/parse" {
		t.Errorf("identity = %q/%q/%q", artifact.RunID, artifact.Job, artifact.Target)
	}
	if artifact.Split != ddmin.DefaultSplit {
		t.Errorf("Split = %d, want %d", artifact.Split, ddmin.DefaultSplit)
	}
	if artifact.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", artifact.DurationMs)
	}
	if artifact.OriginalSize != 9 || artifact.MinimizedSize != 3 {
		t.Errorf("sizes = %d -> %d, want 9 -> 3", artifact.OriginalSize, artifact.MinimizedSize)
	}
	if artifact.Stats.OracleCalls != 13 || artifact.Stats.MaxDepth != 2 {
		t.Errorf("Stats = %+v", artifact.Stats)
	}
	if artifact.Reproducer != "reproducer.bin.zst" {
		t.Errorf("Reproducer = %q, want base name", artifact.Reproducer)
	}
	if artifact.Compression != compression.ZstdCompression {
		t.Errorf("Compression = %v, want zstd", artifact.Compression)
	}
	if len(artifact.Steps) != 1 || !artifact.Steps[0].Fails {
		t.Errorf("Steps = %+v", artifact.Steps)
	}
	if artifact.Error != "" {
		t.Errorf("Error = %q, want empty", artifact.Error)
	}
}

// Contract: run.json uses stable snake_case keys and a textual compression name.
func TestRunArtifact_Schema(t *testing.T) {
	tmpDir := t.TempDir()
	result := &RunResult{
		Job:    &Job{Name: "j", Target: "t", InputMode: InputFile, Compression: compression.SnappyCompression},
		RunID:  "r",
		RunDir: tmpDir,
		Err:    errors.New("boom"),
	}
	if err := WriteRunArtifact(result); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, RunArtifactName))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"run_id", "job", "target", "input_mode", "split", "parallelism", "reproduced", "stats", "compression", "error"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("run.json missing %q", key)
		}
	}
	if raw["compression"] != "snappy" {
		t.Errorf("compression = %v, want \"snappy\"", raw["compression"])
	}
	if raw["input_mode"] != "file" {
		t.Errorf("input_mode = %v, want \"file\"", raw["input_mode"])
	}
	if raw["error"] != "boom" {
		t.Errorf("error = %v, want \"boom\"", raw["error"])
	}
}

func TestReproducer_RoundTrip(t *testing.T) {
	data := []byte("<html><body>crash</body></html>")

	for _, ct := range []compression.Type{
		compression.NoCompression,
		compression.SnappyCompression,
		compression.LZ4Compression,
		compression.ZstdCompression,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			dir := t.TempDir()
			path, err := WriteReproducer(dir, data, ct)
			if err != nil {
				t.Fatalf("WriteReproducer: %v", err)
			}
			if want := filepath.Join(dir, ReproducerPrefix+ct.Extension()); path != want {
				t.Errorf("path = %q, want %q", path, want)
			}

			got, err := ReadReproducer(path)
			if err != nil {
				t.Fatalf("ReadReproducer: %v", err)
			}
			if string(got) != string(data) {
				t.Errorf("round trip = %q, want %q", got, data)
			}
		})
	}
}

// Contract: an empty reproducer is stored uncompressed whatever the job asks for.
func TestReproducer_Empty(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteReproducer(dir, nil, compression.ZstdCompression)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != ReproducerPrefix {
		t.Errorf("path = %q, want plain %s", path, ReproducerPrefix)
	}
	got, err := ReadReproducer(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %q, want empty", got)
	}
}

func TestReadReproducer_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reproducer.bin")
	if err := os.WriteFile(path, []byte{0x42, 'x'}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadReproducer(path); err == nil {
		t.Error("ReadReproducer accepted an unknown frame type")
	}
}

func TestBuildSummary(t *testing.T) {
	start := time.Now()
	job := func(name string) *Job { return &Job{Name: name} }

	results := []*RunResult{
		{Job: job("a"), Reproduced: true, OriginalSize: 100, Minimized: []byte("xy"), Fingerprint: "fp1"},
		{Job: job("b"), Reproduced: true, OriginalSize: 50, Minimized: []byte("z"), Fingerprint: "fp1", IsDuplicate: true},
		{Job: job("c"), Reproduced: false, OriginalSize: 10},
		{Job: job("d"), Err: errors.New("target timed out")},
	}

	summary := BuildSummary(start, start.Add(time.Second), results)

	if summary.TotalJobs != 4 || summary.Reproduced != 2 || summary.NotReproduced != 1 || summary.Errored != 1 {
		t.Errorf("counts = total %d, reproduced %d, not %d, errored %d",
			summary.TotalJobs, summary.Reproduced, summary.NotReproduced, summary.Errored)
	}
	if summary.UniqueFailures != 1 {
		t.Errorf("UniqueFailures = %d, want 1", summary.UniqueFailures)
	}
	if summary.BytesBefore != 150 || summary.BytesAfter != 3 {
		t.Errorf("bytes = %d -> %d, want 150 -> 3", summary.BytesBefore, summary.BytesAfter)
	}
	if summary.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", summary.DurationMs)
	}
	if len(summary.Runs) != 4 || summary.Runs[3].Error != "target timed out" {
		t.Errorf("Runs = %+v", summary.Runs)
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	summary := &Summary{TotalJobs: 1, Runs: []RunSummary{{Job: "a", Reproduced: true}}}

	if err := WriteSummary(dir, summary); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SummaryName))
	if err != nil {
		t.Fatal(err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalJobs != 1 || len(got.Runs) != 1 || got.Runs[0].Job != "a" {
		t.Errorf("summary = %+v", got)
	}
}
