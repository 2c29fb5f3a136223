package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/vtree/pkg/journal"
	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/vdom"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(append(args, "--color=never"), &out, &errOut)
	return code, out.String(), errOut.String()
}

const (
	oldTree = `
ul:
  - li: {key: a, children: [A]}
  - li: {key: b, children: [B]}
`
	newTree = `
ul:
  - li: {key: b, children: [B]}
  - li: {key: a, children: [A]}
  - li: {key: c, children: [C]}
`
)

func TestDiffText(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.yaml", oldTree)
	next := writeFile(t, dir, "new.yaml", newTree)

	code, out, errOut := runCLI(t, "diff", "--verify", old, next)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{`Move(key="b", before=0)`, "Insert(before=2", "2 changes (Insert 1, Move 1)", "patch verified"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDiffJSON(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.yaml", oldTree)
	next := writeFile(t, dir, "new.yaml", newTree)

	code, out, errOut := runCLI(t, "diff", "--json", old, next)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	var p patchJSON
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if len(p.Children) != 1 {
		t.Fatalf("children = %d, want 1 (the ul)", len(p.Children))
	}
	changes := p.Children[0].Changes
	if len(changes) != 2 || changes[0].Op != "Move" || changes[1].Op != "Insert" {
		t.Fatalf("changes = %+v", changes)
	}
	if got := changes[1].HTML; len(got) != 1 || got[0] != "<li>C</li>" {
		t.Errorf("insert html = %v, want [<li>C</li>]", got)
	}
}

func TestDiffExitCode(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.yaml", oldTree)
	next := writeFile(t, dir, "new.yaml", newTree)

	if code, _, errOut := runCLI(t, "diff", "--exit-code", old, next); code != 1 || errOut != "" {
		t.Errorf("differing trees: exit = %d, stderr = %q", code, errOut)
	}
	code, out, _ := runCLI(t, "diff", "--exit-code", old, old)
	if code != 0 || !strings.Contains(out, "no changes") {
		t.Errorf("equal trees: exit = %d, out = %q", code, out)
	}
}

func TestDiffReportsDocumentErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "div:\n  attrs:\n    class: [x]\n")

	code, _, errOut := runCLI(t, "diff", bad, bad)
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	for _, want := range []string{"E004", "bad.yaml:3"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("stderr missing %q:\n%s", want, errOut)
		}
	}
}

func TestRender(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tree.yaml", "p:\n  attrs: {class: x}\n  children: [hi]\n")
	code, out, errOut := runCLI(t, "render", path)
	if code != 0 || strings.TrimSpace(out) != `<p class="x">hi</p>` {
		t.Errorf("render: exit = %d, out = %q, stderr = %s", code, out, errOut)
	}
}

func TestReplay(t *testing.T) {
	sink := journal.NewMemorySink()
	ctx := context.Background()
	old := vdom.Div(vdom.Text("a"))
	next := vdom.Div(vdom.Text("b"))
	patch, _ := vdom.Diff(vdom.NewEvents(), old, next)

	frames := []*protocol.Frame{
		protocol.MountFrame(&protocol.Mount{Seq: 1, Root: old}),
		protocol.EventFrame(&protocol.Event{Seq: 1, Path: "0", Name: "click"}),
		protocol.PatchFrame(&protocol.PatchMessage{Seq: 2, Patch: patch}),
	}
	for _, f := range frames {
		if err := sink.Append(ctx, "s1", f); err != nil {
			t.Fatal(err)
		}
	}
	sink.Close(ctx, "s1")

	dir := t.TempDir()
	if n, err := dumpJournals(sink, dir); err != nil || n != 1 {
		t.Fatalf("dumpJournals() = %d, %v", n, err)
	}

	code, out, errOut := runCLI(t, "replay", "--frames", filepath.Join(dir, "s1.vtj"))
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{"<div>b</div>", "1 mounts, 1 patches, 1 events, last seq 2", "Mount   seq=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReplaySequenceGap(t *testing.T) {
	sink := journal.NewMemorySink()
	ctx := context.Background()
	patch, _ := vdom.Diff(vdom.NewEvents(), vdom.Div(), vdom.Div(vdom.Text("x")))
	sink.Append(ctx, "s", protocol.MountFrame(&protocol.Mount{Seq: 1, Root: vdom.Div()}))
	sink.Append(ctx, "s", protocol.PatchFrame(&protocol.PatchMessage{Seq: 3, Patch: patch}))

	dir := t.TempDir()
	if _, err := dumpJournals(sink, dir); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "replay", filepath.Join(dir, "s.vtj"))
	if code != 1 || !strings.Contains(errOut, "E061") {
		t.Errorf("exit = %d, stderr = %s", code, errOut)
	}
}

func TestDemoProgram(t *testing.T) {
	d := newDemo().(*demo)
	before := d.View()

	d.Update(reverseList{})
	d.Update(setDraft{"third"})
	d.Update(addItem{})
	d.Update(removeItem{2})
	d.Update(increment{})

	if len(d.items) != 2 || d.items[0].id != 1 || d.items[1].text != "third" || d.count != 1 || d.draft != "" {
		t.Fatalf("state = %+v", d)
	}
	if err := vdom.Validate(d.View()); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	patch, _ := vdom.Diff(vdom.EventsFrom(before), before, d.View())
	if patch.IsEmpty() {
		t.Error("Diff() is empty after updates")
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version", "--short")
	if code != 0 || strings.TrimSpace(out) != version {
		t.Errorf("version: exit = %d, out = %q", code, out)
	}
}

func TestColorFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version", "--color=sometimes"}, &out, &errOut); code != 1 || !strings.Contains(errOut.String(), "E122") {
		t.Errorf("invalid --color: exit = %d, stderr = %s", code, errOut.String())
	}
}
