// Package vos holds the shell's view of the operating system: environment
// variable stores and executable lookup.
package vos

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Environ gives read/write access to a set of environment variables.
type Environ interface {
	EnvironFetcher

	// LookupEnv retrieves the value of the environment variable named by the key.
	// If the variable is present in the environment the value (which may be
	// empty) is returned and the boolean is true. Otherwise the returned value
	// will be empty and the boolean will be false.
	LookupEnv(key string) (string, bool)

	// Setenv sets the value of the environment variable named by the key.
	Setenv(key, value string) error

	// Unsetenv unsets a single environment variable.
	Unsetenv(key string) error
}

type EnvironFetcher interface {
	// Environ returns a copy of strings representing the environment, in the
	// form "key=value".
	Environ() []string
}

// EnvList is a static list of key=value pairs.
type EnvList []string

// Environ implements EnvironFetcher.
func (e EnvList) Environ() []string {
	return e
}

func splitPair(e string) (string, string) {
	split := strings.SplitN(e, "=", 2)
	key, value := split[0], ""
	if len(split) > 1 {
		value = split[1]
	}
	return key, value
}

// CopyEnv copies all the environment variables from src to dst.
func CopyEnv(dst Environ, src EnvironFetcher) error {
	for _, e := range src.Environ() {
		key, value := splitPair(e)
		if err := dst.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}

// OSEnv accesses the process environment.
type OSEnv struct{}

var _ Environ = OSEnv{}

// LookupEnv implements Environ.LookupEnv.
func (OSEnv) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Setenv implements Environ.Setenv.
func (OSEnv) Setenv(key, value string) error {
	return os.Setenv(key, value)
}

// Unsetenv implements Environ.Unsetenv.
func (OSEnv) Unsetenv(key string) error {
	return os.Unsetenv(key)
}

// Environ implements Environ.Environ.
func (OSEnv) Environ() []string {
	return os.Environ()
}

// NewMapEnv creates a new environment backed by a map.
func NewMapEnv() *MapEnv {
	return &MapEnv{}
}

// NewMapEnvFrom creates a new environment with a copy of the environment
// variables in the original environment.
func NewMapEnvFrom(src EnvironFetcher) *MapEnv {
	return NewMapEnvFromEnvList(src.Environ())
}

func NewMapEnvFromEnvList(environ []string) *MapEnv {
	out := &MapEnv{}
	// Ignore error, it will never be set for MapEnv.
	_ = CopyEnv(out, EnvList(environ))
	return out
}

// MapEnv implements an in-memory Environ.
type MapEnv struct {
	rw  sync.RWMutex
	env map[string]string
}

var _ Environ = (*MapEnv)(nil)

// Unsetenv implements Environ.Unsetenv.
func (m *MapEnv) Unsetenv(key string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	if m.env != nil {
		delete(m.env, key)
	}
	return nil
}

// Setenv implements Environ.Setenv.
func (m *MapEnv) Setenv(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=\x00") {
		return fmt.Errorf("invalid variable name %q", key)
	}

	m.rw.Lock()
	defer m.rw.Unlock()

	if m.env == nil {
		m.env = make(map[string]string)
	}
	m.env[key] = value
	return nil
}

// LookupEnv implements Environ.LookupEnv.
func (m *MapEnv) LookupEnv(key string) (string, bool) {
	m.rw.RLock()
	defer m.rw.RUnlock()

	val, ok := m.env[key]
	return val, ok
}

// Getenv returns the value of key, or "" if it is unset.
func (m *MapEnv) Getenv(key string) string {
	val, _ := m.LookupEnv(key)
	return val
}

// Keys returns the sorted variable names.
func (m *MapEnv) Keys() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	keys := make([]string, 0, len(m.env))
	for k := range m.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ implements Environ.Environ. Entries are sorted by key.
func (m *MapEnv) Environ() []string {
	var env []string
	for _, k := range m.Keys() {
		env = append(env, fmt.Sprintf("%s=%s", k, m.Getenv(k)))
	}

	return env
}

// Clone returns an independent copy of the environment.
func (m *MapEnv) Clone() *MapEnv {
	return NewMapEnvFrom(m)
}
