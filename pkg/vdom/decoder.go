package vdom

import (
	"encoding/json"
	"fmt"
)

// Decoder turns a native event payload into an application message.
// Payloads are JSON documents produced by the event source.
type Decoder interface {
	Decode(payload []byte) (any, error)
}

// DecoderFunc adapts a function into a Decoder.
type DecoderFunc func(payload []byte) (any, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(payload []byte) (any, error) {
	return f(payload)
}

// Message returns a decoder that ignores the payload and always yields msg.
func Message(msg any) Decoder {
	return DecoderFunc(func([]byte) (any, error) { return msg, nil })
}

// JSON returns a decoder that unmarshals the payload into T and converts it
// with fn.
func JSON[T any](fn func(T) any) Decoder {
	return DecoderFunc(func(payload []byte) (any, error) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return fn(v), nil
	})
}

// TargetValue decodes {"target":{"value":"..."}} payloads, as sent by
// input and change events.
func TargetValue(fn func(value string) any) Decoder {
	return DecoderFunc(func(payload []byte) (any, error) {
		var ev struct {
			Target *struct {
				Value *string `json:"value"`
			} `json:"target"`
		}
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.Target == nil || ev.Target.Value == nil {
			return nil, fmt.Errorf("missing target.value")
		}
		return fn(*ev.Target.Value), nil
	})
}

// TargetChecked decodes {"target":{"checked":true}} payloads.
func TargetChecked(fn func(checked bool) any) Decoder {
	return DecoderFunc(func(payload []byte) (any, error) {
		var ev struct {
			Target *struct {
				Checked *bool `json:"checked"`
			} `json:"target"`
		}
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.Target == nil || ev.Target.Checked == nil {
			return nil, fmt.Errorf("missing target.checked")
		}
		return fn(*ev.Target.Checked), nil
	})
}

// OnClick emits msg on click.
func OnClick(msg any) Attr { return On("click", Message(msg)) }

// OnInput decodes the input's current value on every input event.
func OnInput(fn func(value string) any) Attr { return On("input", TargetValue(fn)) }

// OnChange decodes the committed value on change.
func OnChange(fn func(value string) any) Attr { return On("change", TargetValue(fn)) }

// OnCheck decodes the checked state on change.
func OnCheck(fn func(checked bool) any) Attr { return On("change", TargetChecked(fn)) }

// OnSubmit emits msg on submit and prevents the native form submission.
func OnSubmit(msg any) Attr { return On("submit", Message(msg)).WithPreventDefault() }
