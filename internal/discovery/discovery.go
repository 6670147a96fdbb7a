package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when no broker answered before the timeout.
var ErrNotFound = errors.New("discovery: no broker found")

// Broker is a resolved broker endpoint.
type Broker struct {
	Instance string
	Host     string
	Port     int
}

// Address returns host:port.
func (b Broker) Address() string {
	return net.JoinHostPort(b.Host, fmt.Sprint(b.Port))
}

// browseFunc matches zeroconf.Browse with bidirectional channels.
type browseFunc func(ctx context.Context, service, domain string,
	entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string,
	entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// Resolve browses for cfg.Service and returns the first entry with a usable
// address. It gives up after cfg.Timeout seconds.
func Resolve(ctx context.Context, cfg config.DiscoveryConfig) (Broker, error) {
	return resolve(ctx, cfg, zeroconfBrowse)
}

func resolve(ctx context.Context, cfg config.DiscoveryConfig, browse browseFunc) (Broker, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- browse(ctx, cfg.Service, cfg.Domain, entries, removed, browserOptions(cfg.Interface)...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if b, ok := entryToBroker(entry); ok {
				return b, nil
			}
		case <-removed:
		case err := <-browseErr:
			if err != nil {
				return Broker{}, fmt.Errorf("browsing %s: %w", cfg.Service, err)
			}
			browseErr = nil
		case <-ctx.Done():
			return Broker{}, fmt.Errorf("%w: %s within %s", ErrNotFound, cfg.Service, timeout)
		}
	}
}

// browserOptions restricts browsing to one interface when configured.
func browserOptions(ifaceName string) []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToBroker prefers IPv4, then IPv6, then the advertised host name.
func entryToBroker(entry *zeroconf.ServiceEntry) (Broker, bool) {
	if entry == nil || entry.Port <= 0 {
		return Broker{}, false
	}

	b := Broker{Instance: entry.Instance, Port: entry.Port}
	switch {
	case len(entry.AddrIPv4) > 0:
		b.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		b.Host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		b.Host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Broker{}, false
	}
	return b, true
}
