// Package engine defines the boundary to native inference runtimes
// (llama.cpp, stable-diffusion.cpp, whisper.cpp). The lifecycle layer only
// ever sees these interfaces; a real adapter is compiled behind the `llama`
// build tag and tests inject fakes.
package engine

import (
	"context"
	"errors"

	"llmedged/pkg/types"
)

// ErrCancelled is returned by Generate when the native computation observed
// a cancel signal at one of its checkpoints and aborted.
var ErrCancelled = errors.New("generation cancelled")

// ErrUnavailable is returned by engines compiled without native support.
var ErrUnavailable = errors.New("native engine unavailable in this build")

// NativeBuilt reports whether a real native adapter is compiled in.
func NativeBuilt() bool { return llamaBuilt }

// LoadSpec describes one native load attempt. Thread and backend fields come
// from a LoadPlan computed against live memory readings; they are never
// reused across attempts.
type LoadSpec struct {
	Path        string
	AuxPath     string // VAE or text-encoder component
	DecoderPath string
	Family      types.Family

	// Staged asks the engine to bring sub-components up one at a time with
	// explicit releases in between, trading latency for peak memory.
	Staged bool

	Threads     int
	ContextSize int
	UseGPU      bool
	UseMmap     bool
	UseMlock    bool
}

// Request carries the generation parameters for one native call. Only the
// fields relevant to the handle's family are consulted.
type Request struct {
	Prompt   string
	Negative string

	MaxTokens   int
	Temperature float64
	TopP        float64

	Width    int
	Height   int
	Steps    int
	CFG      float64
	Strength float64
	Frames   int
	Seed     int64

	Samples   []float32
	Language  string
	BeamSize  int
	Translate bool
}

// Segment is one transcribed span; timestamps are centiseconds as reported
// by the native layer.
type Segment struct {
	Index int
	T0    int64
	T1    int64
	Text  string
}

// Result is the tagged output of a native call. Exactly the fields for the
// handle's family are populated.
type Result struct {
	Text      string
	Frames    [][]byte // raw RGB, one buffer per image/video frame
	Segments  []Segment
	Embedding []float32

	// Units completed: tokens for text, denoising steps for diffusion,
	// audio chunks for transcription.
	Units int
}

// ProgressSink receives step counters from the native calling goroutine.
// Counters are monotonically non-decreasing. Implementations must not block
// the native goroutine.
type ProgressSink func(step, total int)

// Handle is an opaque owned reference to one loaded native model.
//
// Generate blocks for the duration of the native computation; it must be run
// on a goroutine the caller is prepared to park. Cancel is a best-effort
// asynchronous signal; the native side polls it between units of work.
// Close releases native memory and is idempotent.
type Handle interface {
	Family() types.Family
	Generate(ctx context.Context, req Request, progress ProgressSink) (Result, error)
	Cancel()
	Close() error
}

// Engine loads models into native memory. Implementations must return a nil
// handle together with an error on any load failure; a non-nil handle is
// ready for Generate.
type Engine interface {
	Load(ctx context.Context, spec LoadSpec) (Handle, error)
}
