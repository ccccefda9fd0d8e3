package engine

import (
	"os"
	"path/filepath"
	"strings"
)

// Quantization working-set multipliers, applied to the on-disk weight size.
// Mmap'd quantized weights page in close to their file size; float16 and
// unquantized checkpoints expand during dequantization on load. These mirror
// what the runtimes actually allocate, coarsely; nothing here parses tensor
// metadata.
var quantMultipliers = map[string]float64{
	"q2": 1.05, "q3": 1.05, "q4": 1.10, "q5": 1.10, "q6": 1.15, "q8": 1.20,
	"f16": 1.30, "fp16": 1.30, "f32": 1.50, "fp32": 1.50,
}

// EstimateWeightBytes approximates the memory a model's weights will occupy
// once loaded, from file size and the quantization tag in the filename. It
// never opens the file contents. Returns the raw stat error when the file
// cannot be inspected.
func EstimateWeightBytes(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	size := fi.Size()
	if size <= 0 {
		return 1, nil
	}
	mult := 1.10
	if q := QuantTag(path); q != "" {
		if m, ok := quantMultipliers[q]; ok {
			mult = m
		}
	}
	return int64(float64(size) * mult), nil
}

// QuantTag extracts a normalized quantization tag (q4, q8, f16, ...) from a
// model filename, or "" when none is recognizable.
func QuantTag(path string) string {
	name := strings.ToLower(filepath.Base(path))
	for _, tag := range []string{"q2", "q3", "q4", "q5", "q6", "q8", "fp16", "f16", "fp32", "f32"} {
		if strings.Contains(name, tag) {
			return tag
		}
	}
	return ""
}
