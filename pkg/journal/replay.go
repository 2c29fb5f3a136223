package journal

import (
	"errors"
	"fmt"

	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/reconcile"
)

// ErrSequenceGap is returned when a journal skips a patch.
var ErrSequenceGap = errors.New("journal: patch sequence gap")

// ReplayStats summarises a replay.
type ReplayStats struct {
	Mounts  int
	Patches int
	Events  int
	LastSeq uint64
}

// Replay applies the Mount and Patch frames of a journal to rec in order.
// Event, control and error frames are counted or skipped. Replay stops at
// the first frame that does not decode or apply.
func Replay(rec *reconcile.Reconciler, frames []*protocol.Frame) (ReplayStats, error) {
	var stats ReplayStats
	mounted := false
	for i, f := range frames {
		switch f.Type {
		case protocol.FrameMount:
			m, err := protocol.DecodeMount(f.Payload)
			if err != nil {
				return stats, fmt.Errorf("journal: frame %d: %w", i, err)
			}
			rec.Mount(m.Root)
			mounted = true
			stats.Mounts++
			stats.LastSeq = m.Seq

		case protocol.FramePatch:
			pm, err := protocol.DecodePatchMessage(f.Payload)
			if err != nil {
				return stats, fmt.Errorf("journal: frame %d: %w", i, err)
			}
			if !mounted {
				return stats, fmt.Errorf("journal: frame %d: %w", i, reconcile.ErrNotMounted)
			}
			if pm.Seq != stats.LastSeq+1 {
				return stats, fmt.Errorf("%w: frame %d has seq %d after %d", ErrSequenceGap, i, pm.Seq, stats.LastSeq)
			}
			if err := rec.Push(pm.Patch); err != nil {
				return stats, fmt.Errorf("journal: frame %d: %w", i, err)
			}
			stats.Patches++
			stats.LastSeq = pm.Seq

		case protocol.FrameEvent:
			stats.Events++
		}
	}
	return stats, nil
}
