package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/internal/errors"
	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/journal"
	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/reconcile"
)

func replayCmd() *cobra.Command {
	var listFrames bool

	cmd := &cobra.Command{
		Use:   "replay <journal.vtj>",
		Short: "Rebuild the final tree of a session journal",
		Long: `Apply the Mount and Patch frames of a journal to a headless document
and print the resulting HTML.

Examples:
  vtree replay journals/01J0B7Z8WQ.vtj
  vtree replay --frames journals/01J0B7Z8WQ.vtj`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.OutOrStdout(), args[0], listFrames)
		},
	}

	cmd.Flags().BoolVar(&listFrames, "frames", false, "List every frame before the tree")
	return cmd
}

func runReplay(w io.Writer, path string, listFrames bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New("E141").WithDetail(err.Error())
	}
	defer f.Close()

	frames, err := journal.Decode(f)
	if err != nil {
		return errors.New("E060").
			WithDetail(fmt.Sprintf("%s: %d frames read before: %v", path, len(frames), err)).
			Wrap(err)
	}

	if listFrames {
		for i, fr := range frames {
			fmt.Fprintf(w, "%4d  %s\n", i, describeFrame(fr))
		}
		fmt.Fprintln(w)
	}

	doc := headless.NewDocument()
	container := doc.NewContainer()
	stats, err := journal.Replay(reconcile.New(doc, container, nil), frames)
	if err != nil {
		code := "E060"
		switch {
		case stderrors.Is(err, journal.ErrSequenceGap):
			code = "E061"
		case stderrors.Is(err, reconcile.ErrDiverged):
			code = "E062"
		}
		return errors.New(code).Wrap(err)
	}

	fmt.Fprintln(w, headless.RenderChildren(container))
	fmt.Fprintln(w)
	success(w, "%d mounts, %d patches, %d events, last seq %d", stats.Mounts, stats.Patches, stats.Events, stats.LastSeq)
	return nil
}

// describeFrame summarises a frame on one line.
func describeFrame(f *protocol.Frame) string {
	msg, err := protocol.DecodeMessage(f)
	if err != nil {
		return color.RedString("%s (undecodable: %v)", f.Type, err)
	}
	switch m := msg.(type) {
	case *protocol.Mount:
		return color.GreenString("Mount   seq=%d", m.Seq) + " " + m.Root.String()
	case *protocol.PatchMessage:
		ops := m.Patch.Ops()
		return color.CyanString("Patch   seq=%d", m.Seq) + fmt.Sprintf(" %v", ops)
	case *protocol.Event:
		return color.YellowString("Event   seq=%d", m.Seq) + fmt.Sprintf(" %s %q", m.Name, m.Path)
	case *protocol.Control:
		return fmt.Sprintf("Control %v", m.Type)
	case *protocol.ErrorMessage:
		return color.RedString("Error   %v", m.Code) + " " + m.Message
	}
	return f.Type.String()
}
