package main

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/saudedash/internal/config"
	"github.com/koustreak/saudedash/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "saudedash",
	Short: "Public health warehouse analytics API",
	Long: `saudedash serves the monthly admissions and deaths reports of the
fato_saude_mensal star schema and the account flows of the dashboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML config file (default: $CONFIG_PATH, then ./config.yaml)")
}

// setup loads the configuration and installs the global logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.LoggerConfig())
	logger.SetGlobal(log)
	return cfg, log, nil
}
