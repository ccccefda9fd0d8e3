package types

// Family categorizes a native engine by its operation set and resource
// footprint. Families gate generation independently but share one memory
// budget policy on-device.
type Family string

const (
	FamilyText       Family = "text"
	FamilyImage      Family = "image"
	FamilyVideo      Family = "video"
	FamilyTranscribe Family = "transcribe"
	FamilyEmbedding  Family = "embedding"
)

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	switch f {
	case FamilyText, FamilyImage, FamilyVideo, FamilyTranscribe, FamilyEmbedding:
		return true
	}
	return false
}

// Heavy reports whether models of this family are large enough that at most
// one heavy family should be resident at a time on a constrained device.
func (f Family) Heavy() bool {
	switch f {
	case FamilyText, FamilyImage, FamilyVideo:
		return true
	}
	return false
}

// Model represents a discoverable or loadable model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" yaml:"id" toml:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" yaml:"name" toml:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the primary weight file on disk.
	// example: /data/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" yaml:"path" toml:"path" example:"/data/models/TinyLlama.Q4_K_M.gguf"`
	// Optional path to a secondary component (VAE or text encoder).
	AuxPath string `json:"aux_path,omitempty" yaml:"aux_path,omitempty" toml:"aux_path,omitempty"`
	// Optional path to an auxiliary decoder.
	DecoderPath string `json:"decoder_path,omitempty" yaml:"decoder_path,omitempty" toml:"decoder_path,omitempty"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" yaml:"quant,omitempty" toml:"quant,omitempty" example:"Q4_K_M"`
	// Model family (text, image, video, transcribe, embedding).
	// example: text
	Family Family `json:"family" yaml:"family" toml:"family" example:"text"`
	// Estimated weight memory in bytes, derived from file size.
	// example: 668000000
	EstBytes int64 `json:"est_bytes,omitempty" yaml:"est_bytes,omitempty" toml:"est_bytes,omitempty" example:"668000000"`
}
