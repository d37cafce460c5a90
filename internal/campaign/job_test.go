package campaign

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/config"
	"github.com/aalhour/deltamin/internal/ddmin"
)

func TestResolveArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		mode InputMode
		want []string
	}{
		{"stdin untouched", []string{"-v"}, InputStdin, []string{"-v"}},
		{"stdin placeholder still replaced", []string{"<INPUT>"}, InputStdin, []string{"/tmp/c"}},
		{"file placeholder", []string{"--in", "<INPUT>", "-q"}, InputFile, []string{"--in", "/tmp/c", "-q"}},
		{"file embedded placeholder", []string{"--in=<INPUT>"}, InputFile, []string{"--in=/tmp/c"}},
		{"file appended", []string{"-q"}, InputFile, []string{"-q", "/tmp/c"}},
		{"file no args", nil, InputFile, []string{"/tmp/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Args: tt.args, InputMode: tt.mode}
			got := job.ResolveArgs("/tmp/c")
			if !slices.Equal(got, tt.want) {
				t.Errorf("ResolveArgs = %q, want %q", got, tt.want)
			}
		})
	}
}

// Contract: ResolveArgs never modifies the job's own argument slice.
func TestResolveArgs_NoAliasing(t *testing.T) {
	job := &Job{Args: []string{"<INPUT>"}, InputMode: InputFile}
	_ = job.ResolveArgs("/tmp/c")
	if job.Args[0] != InputPlaceholder {
		t.Errorf("job.Args mutated: %q", job.Args)
	}
}

func TestJobRunDir(t *testing.T) {
	job := &Job{Name: "parser"}
	if got, want := job.RunDir("/runs", "abc"), filepath.Join("/runs", "parser", "abc"); got != want {
		t.Errorf("RunDir = %q, want %q", got, want)
	}
}

func TestJobSplit(t *testing.T) {
	if got := (&Job{}).split(); got != ddmin.DefaultSplit {
		t.Errorf("zero split = %d, want %d", got, ddmin.DefaultSplit)
	}
	if got := (&Job{Split: 5}).split(); got != 5 {
		t.Errorf("split = %d, want 5", got)
	}
}

func TestJobValidate(t *testing.T) {
	valid := Job{Name: "a", Target: "sh", InputPath: "in", InputMode: InputStdin}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid job: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"no name", func(j *Job) { j.Name = "" }},
		{"no target", func(j *Job) { j.Target = "" }},
		{"no input", func(j *Job) { j.InputPath = "" }},
		{"bad mode", func(j *Job) { j.InputMode = "pipe" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := valid
			tt.mutate(&j)
			if err := j.Validate(); !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("Validate = %v, want %v", err, config.ErrInvalidConfig)
			}
		})
	}
}

func TestJobFromConfig(t *testing.T) {
	c := config.DefaultJob()
	c.Name = "parser"
	c.Target = "/bin/parse"
	c.Args = []string{"<INPUT>"}
	c.Input = "/crashes/1"
	c.Output = "/out/1"
	c.Timeout = "250ms"
	c.InputMode = config.InputModeFile
	c.FailExitCodes = []int{139}
	c.TimeoutIsFailure = true
	c.Parallelism = 3
	c.Cache = true
	c.Compression = "lz4"

	job, err := JobFromConfig(c)
	if err != nil {
		t.Fatal(err)
	}

	if job.Name != "parser" || job.Target != "/bin/parse" || job.InputPath != "/crashes/1" || job.OutputPath != "/out/1" {
		t.Errorf("identity fields = %+v", job)
	}
	if job.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", job.Timeout)
	}
	if job.InputMode != InputFile || job.Split != ddmin.DefaultSplit || job.Parallelism != 3 || !job.Cache {
		t.Errorf("run fields = %+v", job)
	}
	if job.Compression != compression.LZ4Compression {
		t.Errorf("Compression = %v, want lz4", job.Compression)
	}
	if !slices.Equal(job.Policy.FailExitCodes, []int{139}) || !job.Policy.TimeoutIsFailure {
		t.Errorf("Policy = %+v", job.Policy)
	}

	// The job owns its slices.
	c.Args[0] = "changed"
	if job.Args[0] != InputPlaceholder {
		t.Errorf("job.Args aliases the config: %q", job.Args)
	}
}

func TestJobFromConfig_Errors(t *testing.T) {
	c := config.DefaultJob()
	c.Timeout = "soon"
	if _, err := JobFromConfig(c); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("bad timeout: err = %v", err)
	}

	c = config.DefaultJob()
	c.Compression = "bzip2"
	if _, err := JobFromConfig(c); !errors.Is(err, compression.ErrUnsupported) {
		t.Errorf("bad compression: err = %v", err)
	}
}

// Contract: the verdict policy keeps only listed exit codes as failures and
// never turns a clean exit into one.
func TestVerdictPolicy_Status(t *testing.T) {
	tests := []struct {
		name     string
		policy   VerdictPolicy
		exitCode int
		want     int
	}{
		{"default clean", DefaultVerdictPolicy(), 0, 0},
		{"default nonzero", DefaultVerdictPolicy(), 1, 1},
		{"default signal", DefaultVerdictPolicy(), StatusKilled, StatusKilled},
		{"listed", VerdictPolicy{FailExitCodes: []int{134, 139}}, 139, 139},
		{"unlisted", VerdictPolicy{FailExitCodes: []int{134, 139}}, 1, 0},
		{"unlisted signal", VerdictPolicy{FailExitCodes: []int{139}}, StatusKilled, 0},
		{"listed signal", VerdictPolicy{FailExitCodes: []int{StatusKilled}}, StatusKilled, StatusKilled},
		{"zero listed", VerdictPolicy{FailExitCodes: []int{0}}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Status(tt.exitCode); got != tt.want {
				t.Errorf("Status(%d) = %d, want %d", tt.exitCode, got, tt.want)
			}
		})
	}
}
