// Package control renders a RUT input the way a form host expects: it keeps
// the visible text formatted, shows the validation message, mirrors the
// disabled flag and tells the host when its outputs change.
//
// A Control is driven by two kinds of events. UpdateView carries a value
// pushed by the host and never triggers a notification; Input carries the
// user's keystroke buffer and notifies when the cleaned value or the validity
// differ from what was last emitted.
package control

import (
	"rutkit/pkg/rut"
)

// Placeholder is shown while the input is empty.
const Placeholder = "12.345.678-9"

// Props is what the host pushes on every view update.
type Props struct {
	Value    string
	Disabled bool
}

// Outputs is what the host reads back. An empty Value means no RUT.
type Outputs struct {
	Value string
	Valid bool
}

// View is the rendered state of the input and its message.
type View struct {
	Text           string
	Placeholder    string
	Disabled       bool
	Focused        bool
	Caret          int
	Message        string
	MessageVisible bool
	// CustomValidity feeds the native form validity; "" means valid.
	CustomValidity string
	Title          string
}

// Control is a single RUT input. It is not safe for concurrent use; hosts
// call it from their event loop.
type Control struct {
	notify func()
	view   View

	last    Outputs
	emitted bool
	closed  bool
}

// New initialises a control. notify is called whenever Outputs changes in
// response to user input; it may be nil.
func New(notify func()) *Control {
	return &Control{
		notify: notify,
		view:   View{Placeholder: Placeholder},
	}
}

// UpdateView applies a host-supplied value.
func (c *Control) UpdateView(p Props) {
	if c.closed {
		return
	}
	c.view.Disabled = p.Disabled
	c.apply(p.Value, c.view.Text, false)
}

// Input applies the current keystroke buffer.
func (c *Control) Input(text string) {
	if c.closed {
		return
	}
	c.apply(text, text, true)
}

// SetFocused records whether the input has focus. Focused inputs keep the
// caret at the end of the text after reformatting.
func (c *Control) SetFocused(focused bool) {
	c.view.Focused = focused
}

// View returns the current rendered state.
func (c *Control) View() View { return c.view }

// Outputs returns the last computed outputs.
func (c *Control) Outputs() Outputs { return c.last }

// Destroy detaches the control from its host.
func (c *Control) Destroy() {
	c.closed = true
	c.notify = nil
}

// apply evaluates raw. shown is what the input box holds before the update;
// whenever it differs from the formatted value the box is rewritten and a
// focused caret moves to the end.
func (c *Control) apply(raw, shown string, notify bool) {
	res := rut.Evaluate(raw)
	out := Outputs{Value: res.Cleaned, Valid: res.Valid}
	changed := !c.emitted || out != c.last
	c.last, c.emitted = out, true

	if shown != res.Formatted || c.view.Text != res.Formatted {
		c.view.Text = res.Formatted
		if c.view.Focused {
			c.view.Caret = len(c.view.Text)
		}
	}

	msg := res.Message()
	c.view.Message = msg
	c.view.MessageVisible = msg != ""
	c.view.CustomValidity = msg
	c.view.Title = msg

	if changed && notify && c.notify != nil {
		c.notify()
	}
}
