package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: profile name (Options.Profile)
// Val: YAML document; each top-level key is published on config/<key>
// -----------------------------------------------------------------------------

// The sim profile reproduces the demo setup: a port expander at 0x21 on
// SCL21/SDA22.
const cfgSim = `
i2c:
  devices:
    - name: expander
      scl: 21
      sda: 22
      address: 0x21
      mode: 7bit
      speed_hz: 100000
heartbeat:
  interval: 2
`

const cfgESP32 = `
i2c:
  devices:
    - name: expander
      scl: 21
      sda: 22
      address: 0x21
    - name: rtc
      scl: 21
      sda: 22
      address: 0x68
      speed_hz: 400000
heartbeat:
  interval: 5
bridge:
  transport:
    type: tcp
    tcp:
      listen: ":7700"
`

const cfgPico = `
i2c:
  devices:
    - name: aht20
      scl: 5
      sda: 4
      address: 0x38
heartbeat:
  interval: 2
bridge:
  transport:
    type: uart
    uart:
      baud: 115200
      rx_pin: 1
      tx_pin: 0
`

var embeddedConfigs = map[string][]byte{
	"sim":   []byte(cfgSim),
	"esp32": []byte(cfgESP32),
	"pico":  []byte(cfgPico),
}
