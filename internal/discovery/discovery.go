// Package discovery finds connect-capable devices on the local network and
// reports them as a stream of appearance and loss events.
package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

// DefaultService is the mDNS service type advertised by connect devices.
const DefaultService = "_tidalconnect._tcp"

// DefaultDomain is the mDNS browse domain.
const DefaultDomain = "local."

// EventKind discriminates discovery events.
type EventKind int

// Discovery event kinds.
const (
	Appeared EventKind = iota
	Lost
)

// Event is one discovery observation. Appeared events carry the full
// endpoint; Lost events only the name. Events for different devices carry
// no relative ordering guarantee.
type Event struct {
	Kind    EventKind
	Name    string
	Address string
	Port    int
}

// Browser watches the LAN for devices.
type Browser struct {
	service string
	domain  string
}

// BrowserOption is a functional option for configuring the browser.
type BrowserOption func(*Browser)

// WithService overrides the mDNS service type.
func WithService(service string) BrowserOption {
	return func(b *Browser) {
		b.service = service
	}
}

// NewBrowser creates a device browser.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		service: DefaultService,
		domain:  DefaultDomain,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Browse starts browsing and returns the event channel. It runs until ctx
// is cancelled; the channel is closed when browsing stops. A goodbye packet
// (zero TTL) turns into a Lost event, everything else into Appeared; the
// consumer deduplicates re-announcements.
func (b *Browser) Browse(ctx context.Context) (<-chan Event, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry == nil {
					continue
				}

				if entry.TTL == 0 {
					log.Debug().Str("device", entry.Instance).Msg("Device said goodbye")
					events <- Event{Kind: Lost, Name: entry.Instance}
					continue
				}

				if len(entry.AddrIPv4) == 0 {
					continue
				}

				log.Debug().
					Str("device", entry.Instance).
					Str("address", entry.AddrIPv4[0].String()).
					Int("port", entry.Port).
					Msg("Device advertised")

				events <- Event{
					Kind:    Appeared,
					Name:    entry.Instance,
					Address: entry.AddrIPv4[0].String(),
					Port:    entry.Port,
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, b.service, b.domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for devices: %w", err)
	}

	log.Info().Str("service", b.service).Msg("Browsing for devices")
	return events, nil
}
