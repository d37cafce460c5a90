package campaign

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/ddmin"
)

// Artifact file names inside a run directory.
const (
	RunArtifactName  = "run.json"
	SummaryName      = "summary.json"
	ReproducerPrefix = "reproducer.bin"
)

// MaxRecordedSteps caps the probes stored in run.json.
const MaxRecordedSteps = 10000

// RunResult represents the outcome of a single job run.
type RunResult struct {
	// Job is the job that was run.
	Job *Job

	// RunID uniquely identifies this run.
	RunID string

	// RunDir is the directory containing all run artifacts.
	RunDir string

	StartTime time.Time
	EndTime   time.Time

	// Reproduced is false when the original input did not fail.
	Reproduced bool

	// OriginalSize and Minimized describe the reduction.
	OriginalSize int
	Minimized    []byte

	// Stats are the minimizer's counters.
	Stats ddmin.Stats

	// CacheHits counts oracle calls answered by the verdict cache.
	CacheHits int64

	// Steps are the recorded probes, oldest first.
	Steps          []ddmin.Probe
	StepsTruncated bool

	// Fingerprint identifies the minimized reproducer for deduplication.
	// Empty string if nothing was reproduced.
	Fingerprint string

	// IsDuplicate is true if the fingerprint was already known.
	IsDuplicate bool

	// ReproducerPath is the stored reproducer file, if any.
	ReproducerPath string

	// Err is the error that aborted the run, if any.
	Err error
}

// Duration returns the run duration.
func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Reduction returns the fraction of the input removed, in [0, 1].
func (r *RunResult) Reduction() float64 {
	if !r.Reproduced || r.OriginalSize == 0 {
		return 0
	}
	return 1 - float64(len(r.Minimized))/float64(r.OriginalSize)
}

// RunArtifact is the JSON structure written to run.json in each run directory.
type RunArtifact struct {
	RunID          string           `json:"run_id"`
	Job            string           `json:"job"`
	Target         string           `json:"target"`
	Args           []string         `json:"args,omitempty"`
	InputPath      string           `json:"input_path"`
	InputMode      InputMode        `json:"input_mode"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	DurationMs     int64            `json:"duration_ms"`
	Split          int              `json:"split"`
	Parallelism    int              `json:"parallelism"`
	Reproduced     bool             `json:"reproduced"`
	OriginalSize   int              `json:"original_size"`
	MinimizedSize  int              `json:"minimized_size"`
	Stats          ddmin.Stats      `json:"stats"`
	CacheHits      int64            `json:"cache_hits,omitempty"`
	Fingerprint    string           `json:"fingerprint,omitempty"`
	Duplicate      bool             `json:"duplicate,omitempty"`
	Reproducer     string           `json:"reproducer,omitempty"`
	Compression    compression.Type `json:"compression"`
	Error          string           `json:"error,omitempty"`
	Steps          []ddmin.Probe    `json:"steps,omitempty"`
	StepsTruncated bool             `json:"steps_truncated,omitempty"`
}

// NewRunArtifact builds the run.json content for a result.
func NewRunArtifact(result *RunResult) RunArtifact {
	job := result.Job
	artifact := RunArtifact{
		RunID:          result.RunID,
		Job:            job.Name,
		Target:         job.Target,
		Args:           job.Args,
		InputPath:      job.InputPath,
		InputMode:      job.InputMode,
		StartTime:      result.StartTime,
		EndTime:        result.EndTime,
		DurationMs:     result.Duration().Milliseconds(),
		Split:          job.split(),
		Parallelism:    max(job.Parallelism, 1),
		Reproduced:     result.Reproduced,
		OriginalSize:   result.OriginalSize,
		MinimizedSize:  len(result.Minimized),
		Stats:          result.Stats,
		CacheHits:      result.CacheHits,
		Fingerprint:    result.Fingerprint,
		Duplicate:      result.IsDuplicate,
		Compression:    job.Compression,
		Steps:          result.Steps,
		StepsTruncated: result.StepsTruncated,
	}
	if result.ReproducerPath != "" {
		artifact.Reproducer = filepath.Base(result.ReproducerPath)
	}
	if result.Err != nil {
		artifact.Error = result.Err.Error()
	}
	return artifact
}

// WriteRunArtifact writes the run.json file to the run directory.
func WriteRunArtifact(result *RunResult) error {
	data, err := json.MarshalIndent(NewRunArtifact(result), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run artifact: %w", err)
	}
	return os.WriteFile(filepath.Join(result.RunDir, RunArtifactName), data, 0o644)
}

// ReadRunArtifact loads run.json from a run directory.
func ReadRunArtifact(runDir string) (*RunArtifact, error) {
	data, err := os.ReadFile(filepath.Join(runDir, RunArtifactName))
	if err != nil {
		return nil, err
	}
	var artifact RunArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RunArtifactName, err)
	}
	return &artifact, nil
}

// WriteReproducer stores the minimized input as a compression frame and
// returns its path.
func WriteReproducer(runDir string, data []byte, t compression.Type) (string, error) {
	frame, err := compression.Frame(t, data)
	if err != nil {
		return "", fmt.Errorf("encode reproducer: %w", err)
	}
	if len(data) == 0 {
		t = compression.NoCompression
	}
	path := filepath.Join(runDir, ReproducerPrefix+t.Extension())
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadReproducer decodes a reproducer written by WriteReproducer.
func ReadReproducer(path string) ([]byte, error) {
	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, _, err := compression.Unframe(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// Summary is the JSON structure written to summary.json after RunJobs.
type Summary struct {
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	DurationMs     int64        `json:"duration_ms"`
	TotalJobs      int          `json:"total_jobs"`
	Reproduced     int          `json:"reproduced"`
	NotReproduced  int          `json:"not_reproduced"`
	Errored        int          `json:"errored"`
	UniqueFailures int          `json:"unique_failures"`
	BytesBefore    int64        `json:"bytes_before"`
	BytesAfter     int64        `json:"bytes_after"`
	Runs           []RunSummary `json:"runs"`
}

// RunSummary is a brief summary of each run for the job summary.
type RunSummary struct {
	Job           string `json:"job"`
	RunID         string `json:"run_id"`
	RunDir        string `json:"run_dir"`
	Reproduced    bool   `json:"reproduced"`
	OriginalSize  int    `json:"original_size"`
	MinimizedSize int    `json:"minimized_size"`
	OracleCalls   int64  `json:"oracle_calls"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

// BuildSummary aggregates run results.
func BuildSummary(startTime, endTime time.Time, results []*RunResult) *Summary {
	fingerprints := make(map[string]struct{})
	summary := &Summary{
		StartTime:  startTime,
		EndTime:    endTime,
		DurationMs: endTime.Sub(startTime).Milliseconds(),
		TotalJobs:  len(results),
	}

	for _, r := range results {
		rs := RunSummary{
			Job:           r.Job.Name,
			RunID:         r.RunID,
			RunDir:        r.RunDir,
			Reproduced:    r.Reproduced,
			OriginalSize:  r.OriginalSize,
			MinimizedSize: len(r.Minimized),
			OracleCalls:   r.Stats.OracleCalls,
			Fingerprint:   r.Fingerprint,
			Duplicate:     r.IsDuplicate,
			DurationMs:    r.Duration().Milliseconds(),
		}
		if r.Err != nil {
			rs.Error = r.Err.Error()
		}
		summary.Runs = append(summary.Runs, rs)

		switch {
		case r.Err != nil:
			summary.Errored++
		case r.Reproduced:
			summary.Reproduced++
			summary.BytesBefore += int64(r.OriginalSize)
			summary.BytesAfter += int64(len(r.Minimized))
			fingerprints[r.Fingerprint] = struct{}{}
		default:
			summary.NotReproduced++
		}
	}
	summary.UniqueFailures = len(fingerprints)
	return summary
}

// WriteSummary writes summary.json to the run root.
func WriteSummary(runRoot string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(filepath.Join(runRoot, SummaryName), data, 0o644)
}

// Fingerprint identifies a minimized reproducer: BLAKE3 of the target's base
// name and the reproducer bytes, truncated to 16 hex chars.
func Fingerprint(target string, minimized []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(filepath.Base(target)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(minimized)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// EnsureDir creates a directory if it does not exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
