package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/vtree/pkg/vdom"
)

func TestFrameEncodeDecode(t *testing.T) {
	f := &Frame{Type: FramePatch, Flags: FlagSequenced, Payload: []byte{1, 2, 3}}
	data := f.Encode()
	if len(data) != FrameHeaderSize+3 {
		t.Fatalf("len = %d, want %d", len(data), FrameHeaderSize+3)
	}
	if data[0] != byte(FramePatch) || data[5] != 3 {
		t.Errorf("header = % x", data[:FrameHeaderSize])
	}

	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != FramePatch || !got.Flags.Has(FlagSequenced) || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("DecodeFrame() = %+v", got)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	valid := NewFrame(FrameEvent, []byte("abc")).Encode()
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", valid[:3], io.ErrUnexpectedEOF},
		{"short payload", valid[:len(valid)-1], io.ErrUnexpectedEOF},
		{"trailing", append(bytes.Clone(valid), 0), ErrTrailingBytes},
		{"unknown type", []byte{0x42, 0, 0, 0, 0, 0}, ErrInvalidFrameType},
		{"too large", []byte{byte(FramePatch), 0, 0x7f, 0xff, 0xff, 0xff}, ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadWriteFrameStream(t *testing.T) {
	var buf bytes.Buffer
	frames := []*Frame{
		ControlFrame(NewPing(42)),
		NewFrame(FrameError, nil),
		PatchFrame(&PatchMessage{Seq: 7, Patch: &vdom.Patch{Removed: 1}}),
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		if got.Type != want.Type || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("frame #%d = %v, want %v", i, got.Type, want.Type)
		}
	}
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("ReadFrame() at end = %v, want io.EOF", err)
	}

	partial := bytes.NewReader(frames[0].Encode()[:FrameHeaderSize+2])
	if _, err := ReadFrame(partial); err != io.ErrUnexpectedEOF {
		t.Errorf("ReadFrame() on cut payload = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeMessage(t *testing.T) {
	root := vdom.Div(vdom.Text("hi"))
	patch, _ := vdom.Diff(nil, root, vdom.Div(vdom.Text("bye")))

	tests := []struct {
		name  string
		frame *Frame
		check func(t *testing.T, msg Message)
	}{
		{"mount", MountFrame(&Mount{Seq: 1, Root: root}), func(t *testing.T, msg Message) {
			m := msg.(*Mount)
			if m.Seq != 1 || m.Root.Tag != "div" || m.Root.Children[0].Content != "hi" {
				t.Errorf("Mount = %+v", m)
			}
		}},
		{"patch", PatchFrame(&PatchMessage{Seq: 2, Patch: patch}), func(t *testing.T, msg Message) {
			m := msg.(*PatchMessage)
			if m.Seq != 2 {
				t.Errorf("Seq = %d, want 2", m.Seq)
			}
			if diff := cmp.Diff(patch, m.Patch, wireEqual); diff != "" {
				t.Errorf("patch mismatch (-want +got):\n%s", diff)
			}
		}},
		{"event", EventFrame(&Event{Seq: 3, Path: "0\t1", Name: "click", Payload: []byte(`{}`)}), func(t *testing.T, msg Message) {
			ev := msg.(*Event)
			if ev.Seq != 3 || ev.Path != "0\t1" || ev.Name != "click" || string(ev.Payload) != "{}" {
				t.Errorf("Event = %+v", ev)
			}
		}},
		{"remount", ControlFrame(NewRemount(9)), func(t *testing.T, msg Message) {
			c := msg.(*Control)
			if c.Type != ControlRemount || c.LastSeq != 9 {
				t.Errorf("Control = %+v", c)
			}
		}},
		{"close", ControlFrame(NewClose(CloseServerShutdown, "bye")), func(t *testing.T, msg Message) {
			c := msg.(*Control)
			if c.Reason != CloseServerShutdown || c.Message != "bye" {
				t.Errorf("Control = %+v", c)
			}
		}},
		{"error", ErrorFrame(NewFatalError(ErrDiverged, "out of sync")), func(t *testing.T, msg Message) {
			em := msg.(*ErrorMessage)
			if em.Error() != "fatal: Diverged: out of sync" {
				t.Errorf("Error() = %q", em.Error())
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(tt.frame.Encode())
			if err != nil {
				t.Fatal(err)
			}
			msg, err := DecodeMessage(f)
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestPongEchoesPing(t *testing.T) {
	ping := NewPing(1234)
	got, err := DecodeControl(EncodeControl(NewPong(ping)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != ControlPong || got.Timestamp != 1234 {
		t.Errorf("Pong = %+v", got)
	}
}

func TestEventRequiresName(t *testing.T) {
	if _, err := DecodeEvent(EncodeEvent(&Event{Path: "0"})); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
}
