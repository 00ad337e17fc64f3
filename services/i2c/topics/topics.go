// Package topics names the bus topics of the i2c service.
package topics

import "i2cbroker-go/bus"

const (
	TokI2C    = "i2c"
	TokCmd    = "cmd"
	TokEvt    = "evt"
	TokDiag   = "diag"
	TokState  = "state"
	TokConfig = "config"
)

// i2c/cmd/<attach|detach|execute|dump>
func Cmd(name string) bus.Topic { return bus.T(TokI2C, TokCmd, name) }

// i2c/cmd/+
func CmdAll() bus.Topic { return bus.T(TokI2C, TokCmd, "+") }

// i2c/evt/<attached|detached|data|error>
func Evt(name string) bus.Topic { return bus.T(TokI2C, TokEvt, name) }

// i2c/evt/+
func EvtAll() bus.Topic { return bus.T(TokI2C, TokEvt, "+") }

func Diag() bus.Topic  { return bus.T(TokI2C, TokDiag) }
func State() bus.Topic { return bus.T(TokI2C, TokState) }

// config/i2c carries types.I2CSetup.
func Config() bus.Topic { return bus.T(TokConfig, TokI2C) }
