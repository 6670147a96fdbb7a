package wifi

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
	"github.com/nerrad567/neurite-core/internal/process"
)

const defaultPollInterval = time.Second

// Logger is the logging interface used by the station.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// addrLookup returns the addresses of a named interface.
type addrLookup func(name string) ([]net.Addr, error)

func interfaceAddrs(name string) ([]net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.Addrs()
}

// HostStation is a Station backed by the host's network stack.
//
// It watches one interface and reports GotIP once it holds an IPv4 address.
// When the supplicant is managed, wpa_supplicant is supervised for the
// interface and giving up on it reports ConnectFail. An empty interface name
// means networking is handled outside Neurite: GotIP is reported once.
type HostStation struct {
	cfg      config.WiFiConfig
	interval time.Duration
	lookup   addrLookup

	ctx    context.Context
	cancel context.CancelFunc

	started    atomic.Bool
	failed     atomic.Bool
	supervisor *process.Supervisor
	wg         sync.WaitGroup

	logger Logger
}

// NewHostStation returns a station bound to ctx. Close stops it.
func NewHostStation(ctx context.Context, cfg config.WiFiConfig) *HostStation {
	interval := time.Duration(cfg.PollInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &HostStation{
		cfg:      cfg,
		interval: interval,
		lookup:   interfaceAddrs,
		ctx:      ctx,
		cancel:   cancel,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before Connect.
func (h *HostStation) SetLogger(logger Logger) {
	h.logger = logger
}

// Connect starts watching the interface. Only the first call has effect.
func (h *HostStation) Connect(ssid, password string, report func(Status)) {
	if !h.started.CompareAndSwap(false, true) {
		h.logger.Warn("wifi connect already requested")
		return
	}

	h.logger.Info("wifi connecting", "ssid", ssid, "interface", h.cfg.Interface)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		if h.cfg.Interface == "" {
			report(StatusGotIP)
			return
		}

		if h.cfg.Supplicant.Managed {
			if err := h.startSupplicant(ssid, password); err != nil {
				h.logger.Error("wpa_supplicant failed to start", "error", err)
				h.failed.Store(true)
			}
		}

		h.poll(report)
	}()
}

func (h *HostStation) startSupplicant(ssid, password string) error {
	supCfg := h.cfg.Supplicant
	if supCfg.ConfigFile == "" {
		path, err := writeSupplicantConfig(os.TempDir(), h.cfg.Interface, ssid, password)
		if err != nil {
			return err
		}
		supCfg.ConfigFile = path
	}
	if supCfg.Binary == "" {
		supCfg.Binary = "wpa_supplicant"
	}

	sup := process.NewSupervisor(process.SupplicantConfig(supCfg, h.cfg.Interface))
	if l, ok := h.logger.(process.Logger); ok {
		sup.SetLogger(l)
	}
	sup.OnStateChange(func(s process.State) {
		if s == process.StateGaveUp {
			h.failed.Store(true)
		}
	})
	h.supervisor = sup

	return sup.Start(h.ctx)
}

// poll reports each status change until the station is closed.
func (h *HostStation) poll(report func(Status)) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := StatusIdle
	for {
		if s := h.probe(); s != last {
			last = s
			report(s)
		}

		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// probe derives the current status from the interface and supervisor.
func (h *HostStation) probe() Status {
	if h.failed.Load() {
		return StatusConnectFail
	}

	addrs, err := h.lookup(h.cfg.Interface)
	if err != nil {
		return StatusNoAPFound
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
			return StatusGotIP
		}
	}
	return StatusConnecting
}

// Close stops polling and the supervised supplicant.
func (h *HostStation) Close() error {
	h.cancel()
	h.wg.Wait()
	if h.supervisor != nil {
		return h.supervisor.Stop()
	}
	return nil
}

// writeSupplicantConfig writes a minimal wpa_supplicant config for one network.
// Quoted values are taken literally by wpa_supplicant, so nothing is escaped;
// values that cannot be quoted are written as hex.
func writeSupplicantConfig(dir, iface, ssid, password string) (string, error) {
	var b strings.Builder
	b.WriteString("ctrl_interface=/run/wpa_supplicant\n")
	b.WriteString("network={\n")
	b.WriteString("\tssid=" + supplicantSSID(ssid) + "\n")
	switch {
	case password == "":
		b.WriteString("\tkey_mgmt=NONE\n")
	case isRawPSK(password):
		b.WriteString("\tpsk=" + strings.ToLower(password) + "\n")
	case isPassphrase(password):
		b.WriteString("\tpsk=\"" + password + "\"\n")
	default:
		return "", ErrInvalidPassphrase
	}
	b.WriteString("}\n")

	path := filepath.Join(dir, "neurite-wpa-"+iface+".conf")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return "", fmt.Errorf("writing supplicant config: %w", err)
	}
	return path, nil
}

// supplicantSSID quotes printable SSIDs and hex-encodes anything else.
func supplicantSSID(ssid string) string {
	for i := 0; i < len(ssid); i++ {
		if !printableASCII(ssid[i]) || ssid[i] == '"' {
			return hex.EncodeToString([]byte(ssid))
		}
	}
	return `"` + ssid + `"`
}

// isRawPSK reports whether s is a 256-bit PSK written as 64 hex digits.
func isRawPSK(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// isPassphrase reports whether s is a valid WPA passphrase.
func isPassphrase(s string) bool {
	if len(s) < 8 || len(s) > 63 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !printableASCII(s[i]) {
			return false
		}
	}
	return true
}

func printableASCII(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}
