// Package config reads the service configuration. Keys are dotted paths
// (messaging.nats.url) and every key can be overridden from the environment.
package config

import (
	"io"
	"time"
)

// Config is a read-only view of the loaded configuration. Missing keys and
// values that do not convert yield the zero value.
type Config interface {
	io.Closer

	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetInt64(key string) int64
	GetUint(key string) uint
	GetUint16(key string) uint16
	GetFloat64(key string) float64

	// GetSecond reads an integer number of seconds.
	GetSecond(key string) time.Duration

	// GetArray reads a comma separated list, e.g. "nsqd-1:4150, nsqd-2:4150".
	// Blank elements are dropped.
	GetArray(key string) []string
}
