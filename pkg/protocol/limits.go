package protocol

import "errors"

// Depth limits for recursive structures, complementing the allocation
// limits in decoder.go.
const (
	// MaxNodeDepth limits the nesting depth of a decoded tree.
	MaxNodeDepth = 256

	// MaxPatchDepth limits the nesting depth of a decoded Patch. Nodes
	// carried by Insert and Replace changes are limited separately.
	MaxPatchDepth = 256
)

// ErrMaxDepthExceeded is returned when a decoded structure nests deeper
// than its limit.
var ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")

// depthContext tracks the current decoding depth of a recursive structure.
type depthContext struct {
	current int
	max     int
}

func newDepthContext(max int) *depthContext {
	return &depthContext{max: max}
}

// enter increments the depth, failing once the limit is reached.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}
