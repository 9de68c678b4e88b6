package ua

import (
	"fmt"

	"softphone/pkg/engine"
)

// Transport wraps one engine transport handle. Transports carry no
// notifications, so there is no handler slot and no registry entry.
type Transport struct {
	ua *UA
	id int
}

// ID returns the engine handle.
func (t *Transport) ID() int { return t.id }

func (t *Transport) String() string { return fmt.Sprintf("transport %d", t.id) }

// Info retrieves a snapshot of the transport.
func (t *Transport) Info() (*engine.TransportInfo, error) {
	code, info := t.ua.eng.TransportInfo(t.id)
	if err := t.ua.errCheck("transport_info", t, code); err != nil {
		return nil, err
	}
	return info, nil
}

// SetEnabled starts or stops the transport.
func (t *Transport) SetEnabled(enabled bool) error {
	return t.ua.errCheck("set_enabled", t, t.ua.eng.TransportSetEnabled(t.id, enabled))
}

// Close shuts the transport down. With force set, pending transactions
// using it are aborted instead of drained.
func (t *Transport) Close(force bool) error {
	return t.ua.errCheck("close", t, t.ua.eng.TransportClose(t.id, force))
}
