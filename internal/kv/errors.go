package kv

import "fmt"

// ConfigurationError reports invalid or incomplete client
// configuration. Never retried.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotConnectedError reports that no connection could be established
// and the connect retry budget is exhausted.
type NotConnectedError struct {
	Err error
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected: %v", e.Err)
}

func (e *NotConnectedError) Unwrap() error { return e.Err }
