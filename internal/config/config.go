// Package config loads org and tool configuration from a config.yaml file
// with environment-variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything sfmeta needs to talk to an org and write output.
type Config struct {
	// InstanceURL is the org's base URL, e.g. "https://acme.my.salesforce.com".
	InstanceURL string

	// AccessToken authenticates API calls. Obtaining it (OAuth, sfdx, ...)
	// is outside this tool's scope.
	AccessToken string

	// APIVersion used for all API calls.
	APIVersion string

	// OutputDir is where retrieved archives are unpacked.
	OutputDir string

	// HistoryDB is the path of the local retrieval-history database.
	HistoryDB string
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		APIVersion: "58.0",
		OutputDir:  "./unpackaged",
		HistoryDB:  "./sfmeta.db",
	}
}

// Load reads config.yaml from configPath and applies environment
// overrides. Env vars map nested keys with an SFMETA prefix, e.g.
// org.instance_url -> SFMETA_ORG_INSTANCE_URL. A missing config file is
// fine; defaults plus env apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("SFMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	keys := []string{
		"org.instance_url",
		"org.access_token",
		"org.api_version",
		"retrieve.output_dir",
		"history.db_path",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		slog.Debug("no config.yaml found, using defaults and env vars", "path", configPath)
	} else {
		slog.Debug("loaded config.yaml", "file", v.ConfigFileUsed())
	}

	if v.IsSet("org.instance_url") {
		cfg.InstanceURL = v.GetString("org.instance_url")
	}
	if v.IsSet("org.access_token") {
		cfg.AccessToken = v.GetString("org.access_token")
	}
	if v.IsSet("org.api_version") {
		cfg.APIVersion = v.GetString("org.api_version")
	}
	if v.IsSet("retrieve.output_dir") {
		cfg.OutputDir = v.GetString("retrieve.output_dir")
	}
	if v.IsSet("history.db_path") {
		cfg.HistoryDB = v.GetString("history.db_path")
	}

	return cfg, nil
}

// Validate checks that the fields every API call needs are present.
func (c Config) Validate() error {
	if c.InstanceURL == "" {
		return fmt.Errorf("org instance URL is required (org.instance_url or SFMETA_ORG_INSTANCE_URL)")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("org access token is required (org.access_token or SFMETA_ORG_ACCESS_TOKEN)")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("API version cannot be empty")
	}
	return nil
}
