// Command i2cbrokerd runs the I2C broker on the host with a simulated
// engine, an interactive shell and a self-test.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
