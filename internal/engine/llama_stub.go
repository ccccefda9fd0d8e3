//go:build !llama

package engine

import "context"

// llamaBuilt indicates whether this binary was compiled with real llama
// support. The stub build cannot load models but still lets the daemon start
// and report sanity.
var llamaBuilt = false

type stubEngine struct{}

// NewNativeEngine returns a stub engine when built without the `llama` tag.
// Every load reports ErrUnavailable.
func NewNativeEngine() Engine { return stubEngine{} }

func (stubEngine) Load(ctx context.Context, spec LoadSpec) (Handle, error) {
	return nil, ErrUnavailable
}
