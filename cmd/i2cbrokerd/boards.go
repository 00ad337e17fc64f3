package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"i2cbroker-go/services/config"
	"i2cbroker-go/services/i2c"
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List board descriptors and embedded boot profiles",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		for _, name := range i2c.Boards() {
			b, _ := i2c.LookupBoard(name)
			fmt.Fprintf(out, "%-12s pins=%-3d controllers=%d reserved=%v default=%s\n",
				b.Name, b.PinCount, b.Controllers, b.Reserved, b.Default)
		}
		fmt.Fprintf(out, "profiles: %v\n", config.Profiles())
	},
}
