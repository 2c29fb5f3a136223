package reconcile

import (
	"errors"
	"fmt"

	"github.com/vango-dev/vtree/pkg/vdom"
)

var (
	// ErrNotMounted is returned by Push before Mount.
	ErrNotMounted = errors.New("reconcile: not mounted")

	// ErrDiverged is returned by Push once a patch failed to apply. The
	// live tree no longer matches any tree the caller knows of; only Mount
	// recovers.
	ErrDiverged = errors.New("reconcile: live tree diverged, remount required")
)

// UnknownPathError reports a patch addressing a node absent from the live
// tree. It means the patch was computed against a different base tree.
type UnknownPathError struct {
	Path   []int   // child-patch indices from the container down
	Op     vdom.Op // 0 when a child patch itself could not be resolved
	Index  int
	Reason string
}

func (e *UnknownPathError) Error() string {
	op := "patch"
	if e.Op != 0 {
		op = e.Op.String()
	}
	return fmt.Sprintf("reconcile: %s at %v index %d: %s", op, e.Path, e.Index, e.Reason)
}

// Is makes errors.Is(err, ErrDiverged) true.
func (e *UnknownPathError) Is(target error) bool { return target == ErrDiverged }
