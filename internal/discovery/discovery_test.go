package discovery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

func testConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		Enabled: true,
		Service: "_mqtt._tcp",
		Domain:  "local",
		Timeout: 1,
	}
}

// announce returns a browseFunc that emits the given entries then waits.
func announce(list ...*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, _, _ string, entries, _ chan *zeroconf.ServiceEntry, _ ...zeroconf.ClientOption) error {
		for _, e := range list {
			select {
			case entries <- e:
			case <-ctx.Done():
				return nil
			}
		}
		<-ctx.Done()
		return nil
	}
}

func entry(instance string, port int, v4 string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_mqtt._tcp", "local")
	e.Port = port
	if v4 != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(v4)}
	}
	return e
}

func TestResolve_FirstUsableEntry(t *testing.T) {
	unusable := entry("no-address", 1883, "")
	good := entry("mosquitto", 1883, "192.168.1.10")

	b, err := resolve(context.Background(), testConfig(), announce(unusable, good))

	require.NoError(t, err)
	assert.Equal(t, "mosquitto", b.Instance)
	assert.Equal(t, "192.168.1.10", b.Host)
	assert.Equal(t, 1883, b.Port)
	assert.Equal(t, "192.168.1.10:1883", b.Address())
}

func TestResolve_Timeout(t *testing.T) {
	_, err := resolve(context.Background(), testConfig(), announce())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_BrowseError(t *testing.T) {
	failing := func(context.Context, string, string, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry, ...zeroconf.ClientOption) error {
		return errors.New("no multicast interface")
	}

	_, err := resolve(context.Background(), testConfig(), failing)

	assert.ErrorContains(t, err, "no multicast interface")
}

func TestEntryToBroker(t *testing.T) {
	v6 := zeroconf.NewServiceEntry("v6", "_mqtt._tcp", "local")
	v6.Port = 8883
	v6.AddrIPv6 = []net.IP{net.ParseIP("fd00::10")}

	named := zeroconf.NewServiceEntry("named", "_mqtt._tcp", "local")
	named.Port = 1883
	named.HostName = "broker.local."

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantHost string
		wantOK   bool
	}{
		{"nil", nil, "", false},
		{"no port", entry("x", 0, "10.0.0.1"), "", false},
		{"ipv4", entry("x", 1883, "10.0.0.1"), "10.0.0.1", true},
		{"ipv6", v6, "fd00::10", true},
		{"hostname", named, "broker.local", true},
		{"nothing", entry("x", 1883, ""), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := entryToBroker(tt.entry)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantHost, b.Host)
		})
	}
}
