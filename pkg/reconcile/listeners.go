package reconcile

import (
	"time"

	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/vdom"
)

// update applies attribute changes to m. Removals go first so an attribute
// that changed kind ends up in its new form.
func (r *Reconciler) update(m *Meta, added, removed []vdom.Attr) {
	for _, a := range removed {
		switch a.Kind {
		case vdom.AttrAttribute:
			r.doc.RemoveAttribute(m.handle, a.Name)
			if isReflected(a.Name) {
				r.doc.SetProperty(m.handle, a.Name, nil)
			}
		case vdom.AttrProperty:
			r.doc.SetProperty(m.handle, a.Name, nil)
		case vdom.AttrEvent:
			r.unlisten(m, a.Name)
		}
	}

	for _, a := range added {
		switch a.Kind {
		case vdom.AttrAttribute:
			r.doc.SetAttribute(m.handle, a.Name, a.Value)
			// Form state lives in properties once the user has touched the
			// control; the attribute alone would not show.
			switch a.Name {
			case "value":
				r.doc.SetProperty(m.handle, a.Name, a.Value)
			case "checked", "selected":
				r.doc.SetProperty(m.handle, a.Name, true)
			}
		case vdom.AttrProperty:
			r.doc.SetProperty(m.handle, a.Name, a.Prop)
		case vdom.AttrEvent:
			r.listen(m, a)
		}
	}
}

func isReflected(name string) bool {
	return name == "value" || name == "checked" || name == "selected"
}

// listen installs or reconfigures the listener for a.Name. There is one
// live listener per (node, event); changing its options keeps the listener
// and drops rate-limiting state that no longer applies.
func (r *Reconciler) listen(m *Meta, a vdom.Attr) {
	if m.listeners == nil {
		m.listeners = make(map[string]vdom.Attr)
	}
	prev, existed := m.listeners[a.Name]
	m.listeners[a.Name] = a
	if !existed {
		name := a.Name
		r.doc.AddListener(m.handle, name, func(ev NativeEvent) {
			r.handleEvent(m, name, ev)
		})
		return
	}
	if (prev.Debounce > 0 && a.Debounce == 0) || a.Throttle > 0 {
		r.cancelDebounce(m, a.Name)
	}
	if a.Throttle == 0 {
		delete(m.throttles, a.Name)
	}
}

func (r *Reconciler) unlisten(m *Meta, name string) {
	if _, ok := m.listeners[name]; !ok {
		return
	}
	delete(m.listeners, name)
	delete(m.throttles, name)
	r.cancelDebounce(m, name)
	r.doc.RemoveListener(m.handle, name)
}

func (r *Reconciler) cancelDebounce(m *Meta, name string) {
	d, ok := m.debouncers[name]
	if !ok {
		return
	}
	if d.timer.Stop() {
		r.metrics.Timer(metrics.TimerCanceled)
	}
	delete(m.debouncers, name)
}

// delivery is a dispatch resolved under the lock and made after it.
type delivery struct {
	path    string
	name    string
	payload []byte
}

func (r *Reconciler) deliver(d *delivery) {
	if d != nil {
		r.dispatch(d.path, d.name, d.payload)
	}
}

// handleEvent routes one native event.
func (r *Reconciler) handleEvent(m *Meta, name string, ev NativeEvent) {
	r.mu.Lock()
	d := r.route(m, name, ev)
	r.mu.Unlock()
	r.deliver(d)
}

// route applies the listener's options to ev. Throttling takes precedence
// over debouncing when a listener carries both.
func (r *Reconciler) route(m *Meta, name string, ev NativeEvent) *delivery {
	if m.detached {
		return nil
	}
	a, ok := m.listeners[name]
	if !ok {
		r.logger.Debug("event without listener", "event", name)
		return nil
	}
	if a.PreventDefault {
		ev.PreventDefault()
	}
	if a.StopPropagation {
		ev.StopPropagation()
	}
	payload := ev.Payload()

	switch {
	case a.Throttle > 0:
		now := r.clock.Now()
		if last, ok := m.throttles[name]; ok && now.Sub(last) < a.Throttle {
			r.metrics.Event(metrics.StatusThrottled)
			return nil
		}
		if m.throttles == nil {
			m.throttles = make(map[string]time.Time)
		}
		m.throttles[name] = now
		return r.emit(m, name, payload)

	case a.Debounce > 0:
		r.cancelDebounce(m, name)
		if m.debouncers == nil {
			m.debouncers = make(map[string]*debouncer)
		}
		d := &debouncer{}
		d.timer = r.clock.AfterFunc(a.Debounce, func() {
			r.post(func() { r.deliver(r.fire(m, name, d, payload)) })
		})
		m.debouncers[name] = d
		r.metrics.Timer(metrics.TimerArmed)
		return nil

	default:
		return r.emit(m, name, payload)
	}
}

// fire resolves an elapsed debounce timer.
func (r *Reconciler) fire(m *Meta, name string, d *debouncer, payload []byte) *delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A later event or the node's removal supersedes this timer.
	if m.detached || m.debouncers[name] != d {
		return nil
	}
	delete(m.debouncers, name)
	r.metrics.Timer(metrics.TimerFired)
	return r.emit(m, name, payload)
}

// emit resolves the path of m now; it changes with later patches.
func (r *Reconciler) emit(m *Meta, name string, payload []byte) *delivery {
	if r.dispatch == nil {
		return nil
	}
	return &delivery{path: m.Path().String(), name: name, payload: payload}
}
