package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/internal/treedoc"
	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/reconcile"
	"github.com/vango-dev/vtree/pkg/vdom"
)

func diffCmd() *cobra.Command {
	var (
		asJSON   bool
		exitCode bool
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old.yaml> <new.yaml>",
		Short: "Print the patch between two trees",
		Long: `Diff two tree documents and print the patch that turns the first
into the second.

With --verify the patch is also applied to a headless document holding the
old tree and the result is compared with the new tree rendered from scratch.

Examples:
  vtree diff old.yaml new.yaml
  vtree diff --json old.yaml new.yaml
  vtree diff --exit-code old.yaml new.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := treedoc.ParseFile(args[0])
			if err != nil {
				return err
			}
			next, err := treedoc.ParseFile(args[1])
			if err != nil {
				return err
			}

			patch, _ := vdom.Diff(vdom.EventsFrom(old), old, next)
			w := cmd.OutOrStdout()
			if asJSON {
				if err := writePatchJSON(w, patch); err != nil {
					return err
				}
			} else {
				writePatch(w, patch)
			}

			if verify {
				if err := verifyPatch(old, next, patch); err != nil {
					return err
				}
				if !asJSON {
					success(w, "patch verified")
				}
			}
			if exitCode && !patch.IsEmpty() {
				return errDiffers
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the patch as JSON")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 when the trees differ")
	cmd.Flags().BoolVar(&verify, "verify", false, "Apply the patch headlessly and check the result")
	return cmd
}

var opColors = map[vdom.Op]func(string, ...any) string{
	vdom.OpInsert:           color.GreenString,
	vdom.OpRemove:           color.RedString,
	vdom.OpMove:             color.YellowString,
	vdom.OpReplace:          color.YellowString,
	vdom.OpUpdate:           color.CyanString,
	vdom.OpReplaceText:      color.MagentaString,
	vdom.OpReplaceInnerHTML: color.MagentaString,
}

// writePatch prints the patch tree, one change per line, and a summary.
func writePatch(w io.Writer, p *vdom.Patch) {
	if p.IsEmpty() {
		fmt.Fprintln(w, "no changes")
		return
	}
	faint := color.New(color.Faint).SprintfFunc()

	p.Walk(func(depth int, p *vdom.Patch) bool {
		indent := strings.Repeat("  ", depth)
		line := fmt.Sprintf("%s@%d", indent, p.Index)
		if p.Removed > 0 {
			line += " " + color.RedString("removed=%d", p.Removed)
		}
		fmt.Fprintln(w, faint("%s", line))
		for _, c := range p.Changes {
			paint := opColors[c.Op]
			if paint == nil {
				paint = fmt.Sprintf
			}
			fmt.Fprintf(w, "%s  %s\n", indent, paint("%s", c))
		}
		return true
	})

	ops := p.Ops()
	keys := make([]vdom.Op, 0, len(ops))
	total := 0
	for op, n := range ops {
		keys = append(keys, op)
		total += n
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, op := range keys {
		parts[i] = fmt.Sprintf("%s %d", op, ops[op])
	}
	fmt.Fprintf(w, "\n%d changes (%s)\n", total, strings.Join(parts, ", "))
}

type patchJSON struct {
	Index    int          `json:"index"`
	Removed  int          `json:"removed,omitempty"`
	Changes  []changeJSON `json:"changes,omitempty"`
	Children []*patchJSON `json:"children,omitempty"`
}

type changeJSON struct {
	Op      string   `json:"op"`
	Index   *int     `json:"index,omitempty"`
	Before  *int     `json:"before,omitempty"`
	Key     string   `json:"key,omitempty"`
	HTML    []string `json:"html,omitempty"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Content *string  `json:"content,omitempty"`
}

func toJSON(p *vdom.Patch) *patchJSON {
	out := &patchJSON{Index: p.Index, Removed: p.Removed}
	for _, c := range p.Changes {
		cj := changeJSON{Op: c.Op.String()}
		switch c.Op {
		case vdom.OpInsert:
			cj.Before = &c.Before
			for _, n := range c.Children {
				cj.HTML = append(cj.HTML, renderHTML(n))
			}
		case vdom.OpMove:
			cj.Key = c.Key
			cj.Before = &c.Before
		case vdom.OpRemove:
			cj.Index = &c.Index
		case vdom.OpReplace:
			cj.Index = &c.Index
			cj.HTML = []string{renderHTML(c.With)}
		case vdom.OpUpdate:
			cj.Added = attrStrings(c.Added)
			cj.Removed = attrStrings(c.Removed)
		case vdom.OpReplaceText, vdom.OpReplaceInnerHTML:
			cj.Content = &c.Content
		}
		out.Changes = append(out.Changes, cj)
	}
	for _, child := range p.Children {
		out.Children = append(out.Children, toJSON(child))
	}
	return out
}

func attrStrings(attrs []vdom.Attr) []string {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.String()
	}
	return out
}

func writePatchJSON(w io.Writer, p *vdom.Patch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if p.IsEmpty() {
		return enc.Encode(&patchJSON{})
	}
	return enc.Encode(toJSON(p))
}

// renderHTML mounts n into a fresh headless document and serialises it.
func renderHTML(n *vdom.Node) string {
	doc := headless.NewDocument()
	container := doc.NewContainer()
	reconcile.New(doc, container, nil).Mount(n)
	return headless.RenderChildren(container)
}

// verifyPatch applies patch to a document holding old and compares the
// result with next mounted from scratch.
func verifyPatch(old, next *vdom.Node, patch *vdom.Patch) error {
	doc := headless.NewDocument()
	container := doc.NewContainer()
	rec := reconcile.New(doc, container, nil)
	rec.Mount(old)
	if err := rec.Push(patch); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	got := headless.RenderChildren(container)
	if want := renderHTML(next); got != want {
		return fmt.Errorf("patched tree differs from the new tree:\n  got:  %s\n  want: %s", got, want)
	}
	return nil
}
