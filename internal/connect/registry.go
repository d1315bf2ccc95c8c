package connect

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nbonamy/tidal-streamer/internal/discovery"
)

// Device is a discovered playback endpoint. ID is a stable opaque hash of
// name and address, suitable for use in URLs.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// deviceNamespace salts the derived device ids.
var deviceNamespace = uuid.MustParse("8d0a1b4e-43cf-4f35-9e26-9d0c1f6f2a77")

// DeviceID derives the stable opaque id for a device name and address.
func DeviceID(name, address string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(name+"|"+address)).String()
}

// SessionFactory builds a session for a device. Swappable for tests.
type SessionFactory func(device *Device) *Session

// Registry tracks known devices by name and owns at most one live session
// per device. Create and destroy are serialized against concurrent
// discovery events for the same name.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*deviceEntry
	factory SessionFactory

	// preferred breaks ties when several devices are known and the
	// caller does not name one.
	preferred string
}

// deviceEntry is one registry slot. A nil session with pending set is a
// reservation: a connection attempt is in flight and duplicate appearance
// events must not race a second session into existence.
type deviceEntry struct {
	device  *Device
	session *Session
	pending bool
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithPreferredDevice names the device used when several are known and the
// caller does not pick one.
func WithPreferredDevice(name string) RegistryOption {
	return func(r *Registry) {
		r.preferred = name
	}
}

// NewRegistry creates a device registry.
func NewRegistry(factory SessionFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*deviceEntry),
		factory: factory,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run consumes discovery events until ctx is cancelled or the channel
// closes. Events for different devices carry no ordering guarantee; per
// device name the channel preserves causal order.
func (r *Registry) Run(ctx context.Context, events <-chan discovery.Event) {
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case discovery.Appeared:
				if err := r.DeviceAppeared(ev.Name, ev.Address, ev.Port); err != nil {
					log.Warn().Err(err).Str("device", ev.Name).Msg("Device connection failed")
				}
			case discovery.Lost:
				r.DeviceLost(ev.Name)
			}
		}
	}
}

// DeviceAppeared handles a discovery appearance. Duplicate events for a
// device with a pending reservation are ignored; an appearance for a device
// with a live session replaces the session (reconnect). Connection failure
// releases the reservation; retry is the business of repeated discovery
// events, not the registry.
func (r *Registry) DeviceAppeared(name, address string, port int) error {
	r.mu.Lock()

	if entry, ok := r.entries[name]; ok {
		if entry.pending {
			// Duplicate discovery packet while a connect is in flight.
			r.mu.Unlock()
			return nil
		}
		// Known device re-announced: replace the old session.
		old := entry.session
		entry.session = nil
		entry.pending = true
		entry.device.Address = address
		entry.device.Port = port
		entry.device.ID = DeviceID(name, address)
		r.mu.Unlock()

		if old != nil {
			old.Shutdown()
		}
		return r.connect(name)
	}

	device := &Device{
		ID:      DeviceID(name, address),
		Name:    name,
		Address: address,
		Port:    port,
	}
	r.entries[name] = &deviceEntry{device: device, pending: true}
	r.mu.Unlock()

	log.Info().Str("device", name).Str("address", address).Int("port", port).Msg("Device appeared")

	return r.connect(name)
}

// connect dials the reserved device and installs the session, or releases
// the reservation on failure.
func (r *Registry) connect(name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok || !entry.pending {
		r.mu.Unlock()
		return nil
	}
	device := entry.device
	r.mu.Unlock()

	session := r.factory(device)
	if err := session.Connect(); err != nil {
		session.Shutdown()

		r.mu.Lock()
		if entry, ok := r.entries[name]; ok && entry.pending && entry.session == nil {
			delete(r.entries, name)
		}
		r.mu.Unlock()

		return fmt.Errorf("device %s: %w", name, err)
	}

	r.mu.Lock()
	entry, ok = r.entries[name]
	if !ok {
		// The device was lost while we were connecting.
		r.mu.Unlock()
		session.Shutdown()
		return nil
	}
	entry.session = session
	entry.pending = false
	r.mu.Unlock()

	return nil
}

// DeviceLost handles a discovery loss: the session, if any, is shut down
// and the entry removed. Unknown names are tolerated.
func (r *Registry) DeviceLost(name string) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	log.Info().Str("device", name).Msg("Device lost")
	if entry.session != nil {
		entry.session.Shutdown()
	}
}

// Get resolves a device by opaque id. An empty id selects the single known
// device, or the configured preferred one; any other ambiguity fails with
// ErrDeviceNotFound.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		if len(r.entries) == 1 {
			for _, entry := range r.entries {
				return entry.device, nil
			}
		}
		if entry, ok := r.entries[r.preferred]; r.preferred != "" && ok {
			return entry.device, nil
		}
		return nil, ErrDeviceNotFound
	}

	for _, entry := range r.entries {
		if entry.device.ID == id {
			return entry.device, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// Session resolves the live session for a device id, with the same
// selection policy as Get. A reserved-but-unconnected device does not have
// a session yet.
func (r *Registry) Session(id string) (*Session, error) {
	device, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[device.Name]
	if !ok || entry.session == nil {
		return nil, ErrDeviceNotFound
	}
	return entry.session, nil
}

// List returns a snapshot of all known devices.
func (r *Registry) List() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]*Device, 0, len(r.entries))
	for _, entry := range r.entries {
		dup := *entry.device
		devices = append(devices, &dup)
	}
	return devices
}

// Close shuts down every session and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*deviceEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		if entry.session != nil {
			entry.session.Shutdown()
		}
	}
}
