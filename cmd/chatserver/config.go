package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host string `envconfig:"CHAT_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"CHAT_PORT" default:"40001"`
	MOTD string `envconfig:"CHAT_MOTD"`
}

type fileConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	MOTD string `toml:"motd"`
}

// loadConfig reads the environment, then lets the TOML file at path
// (if given) override whatever keys it defines.
func loadConfig(path string) (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("could not process env config: %w", err)
	}

	if path == "" {
		return config, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("could not load config file: %w", err)
	}

	if meta.IsDefined("host") {
		config.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		config.Port = raw.Port
	}
	if meta.IsDefined("motd") {
		config.MOTD = raw.MOTD
	}

	return config, nil
}
