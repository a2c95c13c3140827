package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrUnknownStoreDriver   = errors.New("unknown store driver")
	ErrEmptyCommand         = errors.New("command is empty")
	ErrStoreClosed          = errors.New("store is closed")
	ErrDiscordNotConfigured = errors.New("discord client not configured")

	ErrNotificationRateLimited = errors.New("notification rate limit exceeded")
)

type StoreError struct {
	Driver string
	Key    string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s store: %v", e.Driver, e.Err)
	}
	return fmt.Sprintf("%s store key %q: %v", e.Driver, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(driver, key string, err error) *StoreError {
	return &StoreError{
		Driver: driver,
		Key:    key,
		Err:    err,
	}
}

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
