package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"i2cbroker-go/x/logx"
)

var rootCmd = &cobra.Command{
	Use:   "i2cbrokerd",
	Short: "Shared I2C bus arbitration and command dispatch",
	Long: `i2cbrokerd owns the I2C pins, buses and devices of a board and
serialises attach, detach and transfer commands from many callers.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is ./i2cbrokerd.yaml)")
	pf.String("board", "", "board descriptor (see 'boards')")
	pf.String("profile", "", "embedded boot profile")
	pf.String("setup", "", "YAML boot setup file")
	pf.Duration("timeout", 0, "per transaction timeout")
	pf.Int("queue", 0, "command queue depth")
	pf.String("log-level", "", "trace|debug|info|warn|error")
	pf.String("log-format", "", "console|json")
	pf.String("log-file", "", "rotated log file")

	for key, flag := range map[string]string{
		"config":     "config",
		"board":      "board",
		"profile":    "profile",
		"setup":      "setup",
		"timeout":    "timeout",
		"queue_len":  "queue",
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.AddCommand(runCmd, shellCmd, selftestCmd, boardsCmd)
}

func setDefaults() {
	viper.SetDefault("board", "sim")
	viper.SetDefault("profile", "sim")
	viper.SetDefault("timeout", 50*time.Millisecond)
	viper.SetDefault("queue_len", 16)
	viper.SetDefault("max_devices", 0)
	viper.SetDefault("bus_queue", 16)
	viper.SetDefault("sim.latency", time.Duration(0))
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age_days", 28)
}

func initConfig() {
	setDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("i2cbrokerd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/i2cbrokerd")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("I2CBROKER")
	// e.g. I2CBROKER_LOG_LEVEL for log.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// settings is the resolved daemon configuration.
type settings struct {
	Board      string
	Profile    string
	Setup      string
	Timeout    time.Duration
	QueueLen   int
	MaxDevices int
	BusQueue   int
	SimLatency time.Duration
	Log        logx.Options
}

func loadSettings() settings {
	return settings{
		Board:      viper.GetString("board"),
		Profile:    viper.GetString("profile"),
		Setup:      viper.GetString("setup"),
		Timeout:    viper.GetDuration("timeout"),
		QueueLen:   viper.GetInt("queue_len"),
		MaxDevices: viper.GetInt("max_devices"),
		BusQueue:   viper.GetInt("bus_queue"),
		SimLatency: viper.GetDuration("sim.latency"),
		Log: logx.Options{
			Level:      viper.GetString("log.level"),
			Format:     viper.GetString("log.format"),
			File:       viper.GetString("log.file"),
			MaxSizeMB:  viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAgeDays: viper.GetInt("log.max_age_days"),
		},
	}
}

func newLogger(s settings) (zerolog.Logger, io.Closer) { return logx.New(s.Log) }
