package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether the problem can be fixed at run time, such as a
// directory that does not exist yet.
func (e *ValidationError) IsWarning() bool {
	return strings.HasSuffix(e.Field, "_dir") || strings.HasSuffix(e.Field, ".dir")
}

// ValidationErrors collects every invalid field.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Warnings returns the warning-level entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.IsWarning() {
			out = append(out, v)
		}
	}
	return out
}

// Errors returns the error-level entries.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if !v.IsWarning() {
			out = append(out, v)
		}
	}
	return out
}

// HasErrors reports whether any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ValidateConfig checks every section. Warnings alone do not fail
// validation; they are returned by Check.
func ValidateConfig(c *Config) error {
	if errs := Check(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check returns every problem with c, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors
	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	errs = append(errs, validateDictionary(&c.Dictionary)...)
	errs = append(errs, validateSchema(&c.Schema)...)
	errs = append(errs, validateCandidates(&c.Candidates)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	return errs
}

func validateDictionary(d *DictionaryConfig) ValidationErrors {
	var errs ValidationErrors
	if d.Path == "" {
		errs = append(errs, *RequiredFieldError("dictionary.path"))
	}
	if d.TableDir != "" && !isDir(d.TableDir) {
		errs = append(errs, ValidationError{
			Field:   "dictionary.table_dir",
			Message: fmt.Sprintf("directory %s does not exist", d.TableDir),
		})
	}
	if d.LoadTimeoutMs < 0 || d.LoadTimeoutMs > 60000 {
		errs = append(errs, *RangeError("dictionary.load_timeout_ms", 0, 60000))
	}
	return errs
}

func validateSchema(s *SchemaConfig) ValidationErrors {
	var errs ValidationErrors
	if s.Default == "" {
		errs = append(errs, *RequiredFieldError("schema.default"))
	}
	if strings.ContainsAny(s.Default, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "schema.default",
			Message: "schema id must not contain a path separator",
		})
	}
	if s.Dir != "" && !isDir(s.Dir) {
		errs = append(errs, ValidationError{
			Field:   "schema.dir",
			Message: fmt.Sprintf("directory %s does not exist", s.Dir),
		})
	}
	return errs
}

func validateCandidates(c *CandidatesConfig) ValidationErrors {
	var errs ValidationErrors
	if c.PageSize < 1 || c.PageSize > 10 {
		errs = append(errs, *RangeError("candidates.page_size", 1, 10))
	}
	if c.MaxWidth < 0 {
		errs = append(errs, ValidationError{
			Field:   "candidates.max_width",
			Message: "max width cannot be negative",
		})
	}
	if c.FollowingCacheSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "candidates.following_cache_sec",
			Message: "cache lifetime cannot be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RequiredFieldError reports a missing field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "required field is missing"}
}

// RangeError reports a value outside [min, max].
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
