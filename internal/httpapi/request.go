package httpapi

import (
	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// engineRequest maps the wire payload onto the engine parameter set.
func engineRequest(req types.GenerateRequest) engine.Request {
	return engine.Request{
		Prompt:      req.Prompt,
		Negative:    req.Negative,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Width:       req.Width,
		Height:      req.Height,
		Steps:       req.Steps,
		CFG:         req.CFG,
		Strength:    req.Strength,
		Frames:      req.Frames,
		Seed:        req.Seed,
		Samples:     req.Samples,
		Language:    req.Language,
		BeamSize:    req.BeamSize,
		Translate:   req.Translate,
	}
}
