package main

import (
	"os"

	"github.com/koustreak/saudedash/internal/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.L().With().Err(err).Logger().Error("command failed")
		os.Exit(1)
	}
}
