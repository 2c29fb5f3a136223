// Command vtree diffs, renders and serves virtual trees.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errDiffers makes `vtree diff --exit-code` exit 1 without printing.
var errDiffers = stderrors.New("trees differ")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		if err == errDiffers {
			return 1
		}
		errors.Fprint(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var colorMode string

	rootCmd := &cobra.Command{
		Use:   "vtree",
		Short: "Diff, render and serve virtual trees",
		Long: `vtree works with virtual trees written as YAML documents.

  diff     print the patch that turns one tree into another
  render   print a tree as HTML
  serve    run the demo program over WebSocket
  replay   rebuild the final tree of a session journal
  bench    measure event round trips under load`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setColor(colorMode, stdout)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "Colorize output: auto, always or never")

	rootCmd.AddCommand(
		diffCmd(),
		renderCmd(),
		serveCmd(),
		replayCmd(),
		benchCmd(),
		versionCmd(),
	)
	return rootCmd
}

// setColor applies --color. auto colors only terminals.
func setColor(mode string, w io.Writer) error {
	var on bool
	switch mode {
	case "always":
		on = true
	case "never":
		on = false
	case "auto":
		f, ok := w.(*os.File)
		on = ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	default:
		return errors.New("E122").
			WithDetail(fmt.Sprintf("--color %q is not one of auto, always, never", mode))
	}

	color.NoColor = !on
	if on {
		errors.EnableColors()
	} else {
		errors.DisableColors()
	}
	return nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// info prints an indented info line.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
