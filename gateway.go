package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"netgear-sms-gw/netgear"
)

// Modem is one configured modem connection.
type Modem struct {
	Host     string      `json:"host"`
	Password string      `json:"password"`
	Client   ModemClient `json:"-"`
}

// NewGateway builds the gateway from the environment: modem registry,
// contact store, event bus and relay carrier.
func NewGateway() (*Gateway, error) {
	logf := LoggingFormat{Type: LogType.Startup}

	gateway := &Gateway{
		Modems:  make(map[string]*Modem),
		Metrics: NewMetrics(),
	}

	modems, err := loadModems()
	if err != nil {
		return nil, fmt.Errorf("failed to load modem config: %w", err)
	}
	for _, m := range modems {
		gateway.Modems[m.Host] = m
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := NewContactStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open contact store: %w", err)
		}
		gateway.Store = store
	} else {
		logf.Level = logrus.WarnLevel
		logf.Message = "DATABASE_URL not set, contact and whitelist storage disabled"
		logf.Print()
	}

	events, err := loadEventBus()
	if err != nil {
		return nil, fmt.Errorf("failed to set up event bus: %w", err)
	}
	gateway.Events = events

	carrier, err := loadCarrier()
	if err != nil {
		return nil, fmt.Errorf("failed to load carrier: %w", err)
	}
	gateway.Carrier = carrier

	logf.Level = logrus.InfoLevel
	logf.Message = fmt.Sprintf("gateway ready with %d modem(s)", len(gateway.Modems))
	logf.AddField("hosts", gateway.hosts())
	logf.Print()

	return gateway, nil
}

// loadModems reads modem connections from the MODEMS env var (a JSON array
// of {host, password}) or, when set, from the file named by MODEMS_FILE.
func loadModems() ([]*Modem, error) {
	raw := []byte(os.Getenv("MODEMS"))
	if path := os.Getenv("MODEMS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var configs []Modem
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("invalid modem config: %w", err)
	}

	modems := make([]*Modem, 0, len(configs))
	for i := range configs {
		m := configs[i]
		if m.Host == "" {
			return nil, fmt.Errorf("modem config entry %d has no host", i)
		}
		client, err := netgear.NewClient(netgear.Options{
			Host:     m.Host,
			Password: m.Password,
		})
		if err != nil {
			return nil, err
		}
		m.Client = client
		modems = append(modems, &m)
	}
	return modems, nil
}

// hosts returns the configured modem hosts in stable order.
func (gateway *Gateway) hosts() []string {
	hosts := make([]string, 0, len(gateway.Modems))
	for host := range gateway.Modems {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// resolveModem picks the target modem for a service call. An empty host
// resolves only when exactly one modem is configured.
func (gateway *Gateway) resolveModem(host string) (*Modem, error) {
	if len(gateway.Modems) == 0 {
		return nil, &NoModemConfiguredError{}
	}

	if host == "" {
		if len(gateway.Modems) == 1 {
			for _, m := range gateway.Modems {
				return m, nil
			}
		}
		return nil, &AmbiguousModemTargetError{Hosts: gateway.hosts()}
	}

	if m, ok := gateway.Modems[host]; ok {
		return m, nil
	}
	return nil, &ModemNotFoundError{Host: host, Hosts: gateway.hosts()}
}
