package devices

import (
	"encoding/json"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DeviceConfig is one entry of the device list file.
type DeviceConfig struct {
	Name                 string        `yaml:"name" json:"name"`
	Address              string        `yaml:"address" json:"address"`
	Port                 int           `yaml:"port" json:"port"`
	UnitID               uint8         `yaml:"unit_id" json:"unit_id"`
	Timeout              time.Duration `yaml:"timeout" json:"timeout"`
	PollInterval         time.Duration `yaml:"poll_interval" json:"poll_interval"`
	ShowDisabledChannels bool          `yaml:"show_disabled_channels" json:"show_disabled_channels"`
}

// Endpoint returns host:port.
func (c DeviceConfig) Endpoint() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

type deviceList struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// Defaults fill fields a device entry leaves empty.
type Defaults struct {
	Port              int
	UnitID            uint8
	Timeout           time.Duration
	PollInterval      time.Duration
	ReconnectInterval time.Duration
}

func (d Defaults) apply(c DeviceConfig) DeviceConfig {
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.UnitID == 0 {
		c.UnitID = d.UnitID
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// Values renders NaN as JSON null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) && !math.IsInf(v[i], 0) {
			out[i] = &v[i]
		}
	}
	return json.Marshal(out)
}

// Value is a single reading, NaN renders as null.
type Value float64

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Snapshot is one poll cycle of a device.
type Snapshot struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
	AI        Values    `json:"ai"`
	AO        Values    `json:"ao"`
	DI        []bool    `json:"di"`
	DO        []bool    `json:"do"`
}
