package consts

import (
	"os"
	"path/filepath"
)

const (
	HomeDirName    = ".tgflow"
	ConfigFileName = "config.yaml"
	LogFileName    = "tgflow.log"

	// EnvBotToken overrides bot.token from the config file when set.
	EnvBotToken = "TGFLOW_BOT_TOKEN"
	// EnvConfigPath overrides the default config location.
	EnvConfigPath = "TGFLOW_CONFIG"
)

func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, HomeDirName)
}

func DefaultConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(HomeDir(), ConfigFileName)
}

func DefaultLogFile() string {
	return filepath.Join(HomeDir(), "logs", LogFileName)
}
