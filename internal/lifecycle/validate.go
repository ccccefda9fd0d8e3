package lifecycle

import (
	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// Canonical parameter bounds, applied before any native dispatch. One set of
// limits for every entry point; the native layers never see out-of-range
// values.
const (
	minFrames = 5
	maxFrames = 60

	minSteps = 1
	maxSteps = 150

	minDim  = 64
	maxDim  = 1024
	dimStep = 64

	minCFG = 1.0
	maxCFG = 30.0

	maxTokensLimit = 8192
	maxTemperature = 2.0

	minBeam = 1
	maxBeam = 8
)

// ValidateParams checks the family-relevant fields of req. The first violated
// constraint is reported; a validation failure never reaches the engine and
// never counts as a load.
func ValidateParams(family types.Family, req engine.Request) error {
	if !family.Valid() {
		return ErrValidation("family", string(family), "is not a known model family")
	}

	switch family {
	case types.FamilyText:
		return validateText(req)
	case types.FamilyImage:
		return validateDiffusion(req, false)
	case types.FamilyVideo:
		return validateDiffusion(req, true)
	case types.FamilyTranscribe:
		return validateTranscribe(req)
	case types.FamilyEmbedding:
		return validateEmbedding(req)
	}
	return nil
}

func validateText(req engine.Request) error {
	if req.Prompt == "" {
		return ErrValidation("prompt", "", "must not be empty")
	}
	if req.MaxTokens < 1 || req.MaxTokens > maxTokensLimit {
		return ErrValidation("max_tokens", req.MaxTokens, "must be in [1, 8192]")
	}
	if req.Temperature < 0 || req.Temperature > maxTemperature {
		return ErrValidation("temperature", req.Temperature, "must be in [0, 2]")
	}
	if req.TopP < 0 || req.TopP > 1 {
		return ErrValidation("top_p", req.TopP, "must be in [0, 1]")
	}
	return nil
}

func validateDiffusion(req engine.Request, video bool) error {
	if req.Prompt == "" {
		return ErrValidation("prompt", "", "must not be empty")
	}
	if req.Steps < minSteps || req.Steps > maxSteps {
		return ErrValidation("steps", req.Steps, "must be in [1, 150]")
	}
	if err := validateDim("width", req.Width); err != nil {
		return err
	}
	if err := validateDim("height", req.Height); err != nil {
		return err
	}
	if req.CFG < minCFG || req.CFG > maxCFG {
		return ErrValidation("cfg_scale", req.CFG, "must be in [1.0, 30.0]")
	}
	if req.Strength < 0 || req.Strength > 1 {
		return ErrValidation("strength", req.Strength, "must be in [0, 1]")
	}
	if video {
		if req.Frames < minFrames || req.Frames > maxFrames {
			return ErrValidation("frames", req.Frames, "must be in [5, 60]")
		}
	}
	return nil
}

func validateDim(field string, v int) error {
	if v < minDim || v > maxDim {
		return ErrValidation(field, v, "must be in [64, 1024]")
	}
	if v%dimStep != 0 {
		return ErrValidation(field, v, "must be a multiple of 64")
	}
	return nil
}

func validateTranscribe(req engine.Request) error {
	if len(req.Samples) == 0 {
		return ErrValidation("samples", 0, "must contain audio data")
	}
	if req.BeamSize != 0 && (req.BeamSize < minBeam || req.BeamSize > maxBeam) {
		return ErrValidation("beam_size", req.BeamSize, "must be in [1, 8]")
	}
	return nil
}

func validateEmbedding(req engine.Request) error {
	if req.Prompt == "" {
		return ErrValidation("prompt", "", "must not be empty")
	}
	return nil
}
