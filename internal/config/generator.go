package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SupportedFormats lists the config file formats GenerateConfig accepts.
var SupportedFormats = []string{"yaml"}

// GenerateConfig writes a default configuration file for appName at its
// standard user config path and returns that path.
func GenerateConfig(appName, format string) (string, error) {
	if !isValidFormat(format) {
		return "", fmt.Errorf("unsupported format %q, supported: %v", format, SupportedFormats)
	}

	configDir, err := UserConfigDir(appName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, fmt.Sprintf("config.%s", format))
	if _, err := os.Stat(configPath); err == nil {
		return configPath, fmt.Errorf("config file already exists: %s", configPath)
	}

	var defaultCfg any
	switch appName {
	case AppShoveld:
		defaultCfg = DefaultShoveldConfig()
	case AppShovelctl:
		defaultCfg = DefaultShovelctlConfig()
	default:
		return "", fmt.Errorf("unknown app: %s", appName)
	}

	out, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0o644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}

	return configPath, nil
}

// GenerateConfigIfNotExists returns the path to appName's existing config
// file, or generates a default one (in format) if none is found.
func GenerateConfigIfNotExists(appName, format string) (string, bool, error) {
	configDir, err := UserConfigDir(appName)
	if err != nil {
		return "", false, err
	}

	for _, ext := range SupportedFormats {
		path := filepath.Join(configDir, fmt.Sprintf("config.%s", ext))
		if _, err := os.Stat(path); err == nil {
			return path, false, nil
		}
	}

	path, err := GenerateConfig(appName, format)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func isValidFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
