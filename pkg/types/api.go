package types

// GenerateRequest is the payload for POST /generate. Family-specific fields
// are validated before any native call; unknown fields for a family are
// ignored.
type GenerateRequest struct {
	// Optional model identifier. If empty, the family's default is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// Target family. Required.
	// example: text
	Family Family `json:"family" example:"text"`
	// Prompt text (text, image, video families).
	// example: a cat playing with yarn
	Prompt string `json:"prompt,omitempty" example:"a cat playing with yarn"`
	// Negative prompt (image, video).
	Negative string `json:"negative,omitempty"`
	// Maximum number of new tokens to generate (text).
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (text).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability (text).
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Output width in pixels, multiple of 64 (image, video).
	// example: 256
	Width int `json:"width,omitempty" example:"256"`
	// Output height in pixels, multiple of 64 (image, video).
	// example: 256
	Height int `json:"height,omitempty" example:"256"`
	// Denoising steps (image, video).
	// example: 12
	Steps int `json:"steps,omitempty" example:"12"`
	// Classifier-free guidance scale (image, video).
	// example: 7.5
	CFG float64 `json:"cfg,omitempty" example:"7.5"`
	// Init-image strength in [0,1] (image).
	Strength float64 `json:"strength,omitempty"`
	// Number of video frames (video).
	// example: 13
	Frames int `json:"frames,omitempty" example:"13"`
	// Random seed; 0 or omitted lets the engine choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// PCM float32 audio samples, 16 kHz mono (transcribe).
	Samples []float32 `json:"samples,omitempty"`
	// Language hint (transcribe); empty means auto-detect.
	// example: en
	Language string `json:"language,omitempty" example:"en"`
	// Beam size for transcription decoding.
	// example: 1
	BeamSize int `json:"beam_size,omitempty" example:"1"`
	// Translate transcription output to English.
	Translate bool `json:"translate,omitempty"`
	// Favor throughput over memory safety when planning the load.
	PreferPerformance bool `json:"prefer_performance,omitempty"`
}

// Segment is one transcribed span with centisecond timestamps.
type Segment struct {
	Index int    `json:"index"`
	T0    int64  `json:"t0"`
	T1    int64  `json:"t1"`
	Text  string `json:"text"`
}

// GenerateResponse is the final line of the /generate NDJSON stream.
type GenerateResponse struct {
	Done bool `json:"done"`
	// Outcome is "success", "cancelled", or "failed".
	// example: success
	Outcome string `json:"outcome" example:"success"`
	// Generated text (text family) or full transcript (transcribe).
	Text string `json:"text,omitempty"`
	// Base64-encoded RGB frames (image: one entry; video: one per frame).
	Frames []string `json:"frames,omitempty"`
	// Transcription segments.
	Segments []Segment `json:"segments,omitempty"`
	// Embedding vector (embedding family).
	Embedding []float32 `json:"embedding,omitempty"`
	// Error detail when Outcome is "failed".
	Error string `json:"error,omitempty"`
	// Elapsed wall time in milliseconds.
	// example: 5210
	ElapsedMS int64 `json:"elapsed_ms" example:"5210"`
	// Units (tokens, steps, or audio chunks) per second.
	// example: 14.2
	Throughput float64 `json:"throughput,omitempty" example:"14.2"`
}

// ProgressLine is an intermediate line of the /generate NDJSON stream.
type ProgressLine struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// ResidentModel summarizes one cached native handle for /status.
type ResidentModel struct {
	// Primary weight path of the resident model.
	Path string `json:"path"`
	// Family of the resident model.
	// example: text
	Family Family `json:"family" example:"text"`
	// Estimated size in bytes.
	// example: 668000000
	SizeBytes int64 `json:"size_bytes" example:"668000000"`
	// Time the native load took, in milliseconds.
	// example: 1800
	LoadMS int64 `json:"load_ms" example:"1800"`
	// Last time this handle served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
}

// FamilyStatus reports the lifecycle slot for one family.
type FamilyStatus struct {
	// Family this slot serves.
	Family Family `json:"family"`
	// Slot state: unloaded, loading, ready, generating, error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed on this slot, if any.
	Error string `json:"error,omitempty"`
}

// MetricsSnapshot is the read-only view of the last completed generation.
type MetricsSnapshot struct {
	// Family of the last generation.
	Family Family `json:"family,omitempty"`
	// Wall time of the last generation in milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`
	// Units per second for the last generation.
	Throughput float64 `json:"throughput"`
	// Peak process heap during the last generation, in bytes.
	PeakHeapBytes uint64 `json:"peak_heap_bytes"`
	// Backend used: cpu or gpu.
	// example: cpu
	Backend string `json:"backend,omitempty" example:"cpu"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Resident cached models.
	Residents []ResidentModel `json:"residents"`
	// Per-family slot states.
	Families []FamilyStatus `json:"families"`
	// Total number of evictions performed to free memory.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of native loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of cancelled generations.
	CancellationsTotal uint64 `json:"cancellations_total"`
	// Last generation metrics.
	LastGeneration MetricsSnapshot `json:"last_generation"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: frames 2 below minimum 5
	Error string `json:"error" example:"frames 2 below minimum 5"`
	// HTTP status code.
	// example: 422
	Code int `json:"code" example:"422"`
}
