package platform

import "testing"

func TestSystemMasksMatchSilicon(t *testing.T) {
	cases := map[string]uint64{
		"esp32":       0xF1100000 | 0xFC0, // 6..11
		"esp32s3":     0x3FFFC00000,
		"esp32c6":     1 << 14,
		"esp32c6-ext": 1<<10 | 1<<11,
		"sim":         0,
	}
	for name, want := range cases {
		b, ok := Lookup(name)
		if !ok {
			t.Fatalf("board %q missing", name)
		}
		if got := b.SystemMask(); got != want {
			t.Fatalf("%s: mask %#x, want %#x", name, got, want)
		}
	}
}

func TestDefaultsUsable(t *testing.T) {
	for _, n := range Names() {
		b, _ := Lookup(n)
		m := b.SystemMask()
		for _, p := range []int{b.Default.SCL, b.Default.SDA} {
			if p >= b.PinCount || m&(1<<uint(p)) != 0 {
				t.Fatalf("%s: default pin %d unusable", n, p)
			}
		}
		if b.Controllers < 1 {
			t.Fatalf("%s: no controllers", n)
		}
	}
}
