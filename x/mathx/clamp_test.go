package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 3, 0) != 2 {
		t.Fatal("int clamp")
	}
	if Clamp(time.Hour, time.Millisecond, time.Minute) != time.Minute {
		t.Fatal("duration clamp")
	}
	if Min(4, 2) != 2 || Min("b", "a") != "a" {
		t.Fatal("min")
	}
}
