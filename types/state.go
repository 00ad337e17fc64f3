package types

// ServiceState is published retained on "<svc>/state".
type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// ---- Boot configuration ("config/i2c") ----

type I2CSetup struct {
	Devices []DeviceSpec `json:"devices" yaml:"devices"`
}

type DeviceSpec struct {
	Name         string `json:"name" yaml:"name"`
	DeviceConfig `yaml:",inline"`
}

// ---- Diagnostic dump (published on "i2c/diag") ----

type Dump struct {
	Tag     Tag          `json:"tag"`
	Board   string       `json:"board"`
	PinCnt  int          `json:"pin_count"`
	System  uint64       `json:"system_mask"`
	User    uint64       `json:"user_mask"`
	Buses   []BusDump    `json:"buses"`
	Devices []DeviceDump `json:"devices"`
	Leaked  []Pins       `json:"leaked,omitempty"`
	TS      int64        `json:"ts_ms"`
}

type BusDump struct {
	Index   int  `json:"index"`
	Pins    Pins `json:"pins"`
	Devices int  `json:"devices"`
}

type DeviceDump struct {
	ID      DeviceID `json:"id"`
	Address uint16   `json:"address"`
	Mode    AddrMode `json:"mode"`
	SpeedHz uint32   `json:"speed_hz"`
	Bus     int      `json:"bus"`
}

// HeartbeatConfig arrives on "config/heartbeat".
type HeartbeatConfig struct {
	IntervalS float64 `json:"interval" yaml:"interval"` // seconds
}

// HeartbeatState is published retained on "heartbeat".
type HeartbeatState struct {
	Seq uint64 `json:"seq"`
	TS  int64  `json:"ts_ms"`
}
