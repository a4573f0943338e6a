package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	names := c.ListDatabases()
	sort.Strings(names)
	for _, name := range names {
		db := c.Databases[name]
		errors = append(errors, validateDatabase("databases."+name, &db)...)
	}

	errors = append(errors, c.validateCopy()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ValidateDatabase checks a single database entry.
func (c *Config) ValidateDatabase(name string) error {
	db, err := c.Database(name)
	if err != nil {
		return err
	}
	if errs := validateDatabase("databases."+name, db); len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".dsn",
			Message: "dsn is required",
		})
	} else if db.Driver() == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".dsn",
			Message: "dsn scheme must be 'mysql', 'postgres', 'postgresql', 'sqlite' or 'file'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateCopy() ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"none": true, "count": true, "sha256": true, "": true}
	if !validMethods[c.Copy.Verify] {
		errors = append(errors, ValidationError{
			Field:   "copy.verify",
			Message: "verify must be 'none', 'count' or 'sha256'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "critical": true, "": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warning', 'error' or 'critical'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
