// Package upower subscribes to power source and sleep signals on the system
// bus and routes them to the daemon.
package upower

import (
	"strings"

	"codeberg.org/anhol/ryzenppd/internal/errors"
	"codeberg.org/anhol/ryzenppd/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	upowerName = "org.freedesktop.UPower"
	upowerPath = dbus.ObjectPath("/org/freedesktop/UPower")

	propertiesIface   = "org.freedesktop.DBus.Properties"
	propertiesChanged = propertiesIface + ".PropertiesChanged"

	login1Path      = dbus.ObjectPath("/org/freedesktop/login1")
	login1Manager   = "org.freedesktop.login1.Manager"
	prepareForSleep = login1Manager + ".PrepareForSleep"

	signalBuffer = 16
)

// Handler receives decoded power events. Both callbacks are invoked from the
// bus dispatch goroutine, concurrently with the control loop.
type Handler interface {
	PowerSourceChanged(online bool)
	SleepStateChanged(entering bool)
}

// Router owns the bus connection and the signal dispatch goroutine
type Router struct {
	conn    *dbus.Conn
	handler Handler
	signals chan *dbus.Signal
}

// NewRouter connects to the system bus and subscribes to property changes on
// every line power device plus the login1 prepare-for-sleep signal.
func NewRouter(handler Handler) (*Router, error) {
	errFactory := errors.New()

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errFactory.Wrap(ErrBusUnavailable, err)
	}

	r := &Router{
		conn:    conn,
		handler: handler,
		signals: make(chan *dbus.Signal, signalBuffer),
	}

	if err := r.subscribe(); err != nil {
		conn.Close()
		return nil, err
	}

	return r, nil
}

func (r *Router) subscribe() error {
	errFactory := errors.New()

	// All line power device objects on the UPower bus,
	// e.g. line_power_AC, line_power_ADP1
	var devices []dbus.ObjectPath
	obj := r.conn.Object(upowerName, upowerPath)
	if err := obj.Call(upowerName+".EnumerateDevices", 0).Store(&devices); err != nil {
		return errFactory.Wrap(ErrSubscribeFailed, err)
	}

	matched := 0
	for _, device := range devices {
		if !strings.Contains(string(device), "line_power") {
			continue
		}
		err := r.conn.AddMatchSignal(
			dbus.WithMatchObjectPath(device),
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
		)
		if err != nil {
			return errFactory.Wrap(ErrSubscribeFailed, err)
		}
		logger.Debug().Msgf("Subscribed to property changes on %s", device)
		matched++
	}
	if matched == 0 {
		logger.Warn().Msg("No line power devices found; power source changes will go unnoticed")
	}

	err := r.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return errFactory.Wrap(ErrSubscribeFailed, err)
	}

	return nil
}

// Start begins dispatching bus signals to the handler
func (r *Router) Start() {
	r.conn.Signal(r.signals)
	go r.dispatch()
}

func (r *Router) dispatch() {
	for sig := range r.signals {
		r.route(sig)
	}
}

func (r *Router) route(sig *dbus.Signal) {
	switch sig.Name {
	case propertiesChanged:
		// A change notification without the Online property is ignored
		if online, ok := decodeOnline(sig.Body); ok {
			r.handler.PowerSourceChanged(online)
		}
	case prepareForSleep:
		if entering, ok := decodePrepareForSleep(sig.Body); ok {
			r.handler.SleepStateChanged(entering)
		}
	}
}

// Close stops signal delivery and disconnects from the bus. The dispatch
// goroutine ends once the connection closes its signal channel.
func (r *Router) Close() {
	r.conn.RemoveSignal(r.signals)
	r.conn.Close()
}

// decodeOnline extracts the Online flag from a PropertiesChanged signal body
// (interface name, changed properties, invalidated properties)
func decodeOnline(body []interface{}) (online, ok bool) {
	if len(body) < 2 {
		return false, false
	}

	changed, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}

	variant, ok := changed["Online"]
	if !ok {
		return false, false
	}

	online, ok = variant.Value().(bool)

	return online, ok
}

// decodePrepareForSleep extracts the start flag from a PrepareForSleep signal
// body (true right before sleeping, false after waking up)
func decodePrepareForSleep(body []interface{}) (entering, ok bool) {
	if len(body) < 1 {
		return false, false
	}

	entering, ok = body[0].(bool)

	return entering, ok
}
