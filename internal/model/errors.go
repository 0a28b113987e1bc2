package model

import "fmt"

// ConfigError reports a malformed contract or ABI configuration. It is fatal
// at load time.
type ConfigError struct {
	Subject string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Subject, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError about subject.
func NewConfigError(subject string, err error) *ConfigError {
	return &ConfigError{Subject: subject, Err: err}
}
