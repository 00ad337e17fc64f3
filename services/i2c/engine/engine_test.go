package engine

import (
	"errors"
	"fmt"
	"testing"

	"i2cbroker-go/errcode"
)

func TestTransactCode(t *testing.T) {
	cases := []struct {
		err  error
		want errcode.Code
	}{
		{nil, errcode.OK},
		{ErrNack, errcode.DeviceNotAck},
		{fmt.Errorf("tx: %w", ErrTimeout), errcode.Timeout},
		{ErrCapacity, errcode.Unknown},
		{errors.New("bus fault"), errcode.Unknown},
	}
	for _, c := range cases {
		if got := TransactCode(c.err); got != c.want {
			t.Fatalf("TransactCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
