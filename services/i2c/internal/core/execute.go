package core

import (
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/types"
)

// outLen is the number of bytes a READ or READ_WRITE must return.
func outLen(c types.Execute) (int, error) {
	if c.Type == types.Blob {
		if c.OutLen <= 0 || c.OutLen > types.PayloadCap {
			return 0, badArgs("blob length")
		}
		return c.OutLen, nil
	}
	if w := c.Type.Width(); w > 0 {
		return w, nil
	}
	return 0, badArgs("data type")
}

// execute validates fully before touching the engine.
func (d *Dispatcher) execute(c types.Execute) types.Response {
	dev, ok := d.devs.Find(c.ID)
	if !ok {
		return d.fail(c.Tag, c.ID, "execute", errcode.Wrap(errcode.DeviceNotFound, errcode.SubDevice, "execute", nil))
	}

	var w, r []byte
	switch c.Kind {
	case types.Probe:
	case types.Read, types.Write, types.ReadWrite:
		if c.Kind.Writes() {
			if c.In.Len() == 0 {
				return d.fail(c.Tag, c.ID, "execute", badArgs("empty write"))
			}
			w = c.In.Bytes()
		}
		if c.Kind.Reads() {
			n, err := outLen(c)
			if err != nil {
				return d.fail(c.Tag, c.ID, "execute", err)
			}
			r = make([]byte, n)
		}
	default:
		return d.fail(c.Tag, c.ID, "execute", badArgs("exec kind"))
	}

	err := d.eng.Transact(dev.Handle, c.Kind, w, r, d.cfg.Timeout)
	if code := engine.TransactCode(err); code != errcode.OK {
		return d.fail(c.Tag, c.ID, "execute", errcode.Wrap(code, errcode.SubEngine, c.Kind.String(), err))
	}
	p, _ := types.PayloadOf(r)
	return types.Data{Tag: c.Tag, ID: c.ID, Kind: c.Kind, Status: errcode.OK, Payload: p}
}
