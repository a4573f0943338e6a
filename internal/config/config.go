// Package config provides configuration structures and loading for dcp.
package config

import (
	"strings"

	"github.com/dbsmedya/dcp/internal/types"
)

// Config represents the complete application configuration.
type Config struct {
	Databases map[string]DatabaseConfig `yaml:"databases" mapstructure:"databases"`
	Copy      CopyConfig                `yaml:"copy" mapstructure:"copy"`
	Logging   LoggingConfig             `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig describes one named database and its graph overrides.
// Link and Unlink hold one "child_table:child_column = parent_table:parent_column"
// directive per line.
type DatabaseConfig struct {
	DSN                string `yaml:"dsn" mapstructure:"dsn"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
	Link               string `yaml:"link" mapstructure:"link"`
	Unlink             string `yaml:"unlink" mapstructure:"unlink"`
}

// CopyConfig controls how rows are written to the destination.
type CopyConfig struct {
	IgnoreDuplicates bool   `yaml:"ignore_duplicates" mapstructure:"ignore_duplicates"`
	Verify           string `yaml:"verify" mapstructure:"verify"` // none, count or sha256
	Lock             bool   `yaml:"lock" mapstructure:"lock"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warning, error, critical
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Databases: map[string]DatabaseConfig{},
		Copy: CopyConfig{
			IgnoreDuplicates: false,
			Verify:           "none",
			Lock:             true,
		},
		Logging: LoggingConfig{
			Level:  "warning",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Database returns the named database configuration. Names are matched
// case-insensitively because viper lowercases map keys.
func (c *Config) Database(name string) (*DatabaseConfig, error) {
	db, exists := c.Databases[strings.ToLower(name)]
	if !exists {
		db, exists = c.Databases[name]
	}
	if !exists {
		return nil, types.Errorf(types.ConfigurationError, "database",
			"database %q not found in configuration", name)
	}
	return &db, nil
}

// Targets resolves the source and destination databases of a copy.
func (c *Config) Targets(src, dest string) (*DatabaseConfig, *DatabaseConfig, error) {
	if strings.EqualFold(src, dest) {
		return nil, nil, types.Errorf(types.ConfigurationError, "targets",
			"the source and destination databases are the same")
	}

	source, err := c.Database(src)
	if err != nil {
		return nil, nil, err
	}
	destination, err := c.Database(dest)
	if err != nil {
		return nil, nil, err
	}
	if errs := append(validateDatabase("databases."+src, source),
		validateDatabase("databases."+dest, destination)...); len(errs) > 0 {
		return nil, nil, types.Wrap(types.ConfigurationError, "targets", errs)
	}
	return source, destination, nil
}

// Dialect names returned by DatabaseConfig.Driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Driver derives the dialect from the DSN scheme. It returns an empty
// string when the scheme is not supported.
func (d *DatabaseConfig) Driver() string {
	dsn := strings.ToLower(strings.TrimSpace(d.DSN))
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return DriverMySQL
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"):
		return DriverSQLite
	}
	return ""
}

// ListDatabases returns all database names defined in the configuration.
func (c *Config) ListDatabases() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	return names
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat, verify string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if verify != "" {
		c.Copy.Verify = verify
	}
}
