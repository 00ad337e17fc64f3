// Package platform describes the SoCs and boards the broker can run on.
package platform

import (
	"sort"

	"i2cbroker-go/types"
)

// Board describes what the SoC can do: GPIO range, pins unusable for I2C and
// the number of I2C controllers. It must not include wiring choices.
type Board struct {
	Name        string
	PinCount    int   // GPIO 0..PinCount-1
	Reserved    []int // flash, PSRAM, board functions, nonexistent pins
	Controllers int

	// Recommended pins for tools and the self-test.
	Default types.Pins
}

// SystemMask is Reserved as a bitmap.
func (b Board) SystemMask() uint64 {
	var m uint64
	for _, p := range b.Reserved {
		if p >= 0 && p < 64 {
			m |= 1 << uint(p)
		}
	}
	return m
}

func maskPins(m uint64) []int {
	var out []int
	for i := 0; i < 64; i++ {
		if m&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

func span(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

var boards = map[string]Board{
	"esp32": {
		Name:     "esp32",
		PinCount: 40,
		// SPI flash 6..11, plus pins absent from the package.
		Reserved:    append(span(6, 11), maskPins(0xF1100000)...),
		Controllers: 2,
		Default:     types.Pins{SCL: 21, SDA: 22},
	},
	"esp32s3": {
		Name:        "esp32s3",
		PinCount:    49,
		Reserved:    maskPins(0x3FFFC00000), // in-package flash/PSRAM 22..37
		Controllers: 2,
		Default:     types.Pins{SCL: 9, SDA: 8},
	},
	"esp32c6": {
		Name:        "esp32c6",
		PinCount:    31,
		Reserved:    []int{14}, // embedded flash
		Controllers: 1,
		Default:     types.Pins{SCL: 7, SDA: 6},
	},
	"esp32c6-ext": {
		Name:        "esp32c6-ext",
		PinCount:    31,
		Reserved:    []int{10, 11}, // external flash or embedded PSRAM
		Controllers: 1,
		Default:     types.Pins{SCL: 7, SDA: 6},
	},
	"pico": {
		Name:        "pico",
		PinCount:    30,
		Reserved:    []int{23, 24, 25, 29}, // SMPS mode, VBUS sense, LED, VSYS/3
		Controllers: 2,
		Default:     types.Pins{SCL: 5, SDA: 4},
	},
	"sim": {
		Name:        "sim",
		PinCount:    64,
		Controllers: types.MaxBuses,
		Default:     types.Pins{SCL: 21, SDA: 22},
	},
}

// Lookup returns the named board.
func Lookup(name string) (Board, bool) {
	b, ok := boards[name]
	return b, ok
}

// Names lists known boards, sorted.
func Names() []string {
	out := make([]string, 0, len(boards))
	for n := range boards {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
