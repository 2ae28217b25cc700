package database

import (
	"fmt"
	"os"
	"strconv"

	"github.com/syssam/velograph"
)

// EnvPoolSize names the variable holding the pool size shared by all backends.
const EnvPoolSize = "WG_POOL_SIZE"

// EnvString returns the value of the environment variable name. It fails
// with velograph.ErrEnvNotFound when the variable is unset.
func EnvString(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", &velograph.EnvError{Name: name, Err: velograph.ErrEnvNotFound}
	}
	return v, nil
}

// EnvInt parses the environment variable name as an integer.
func EnvInt(name string) (int, error) {
	s, err := EnvString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &velograph.EnvError{Name: name, Err: fmt.Errorf("%w: %v", velograph.ErrEnvNotParsed, err)}
	}
	return n, nil
}

// EnvBool parses the environment variable name as a boolean.
func EnvBool(name string) (bool, error) {
	s, err := EnvString(name)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &velograph.EnvError{Name: name, Err: fmt.Errorf("%w: %v", velograph.ErrEnvNotParsed, err)}
	}
	return b, nil
}

// EnvStringOr returns the variable, or def when it is unset.
func EnvStringOr(name, def string) string {
	if v, err := EnvString(name); err == nil {
		return v
	}
	return def
}

// EnvIntOr parses the variable, or returns def when it is unset. A malformed
// value is still an error.
func EnvIntOr(name string, def int) (int, error) {
	if _, ok := os.LookupEnv(name); !ok {
		return def, nil
	}
	return EnvInt(name)
}

// EnvBoolOr parses the variable, or returns def when it is unset.
func EnvBoolOr(name string, def bool) (bool, error) {
	if _, ok := os.LookupEnv(name); !ok {
		return def, nil
	}
	return EnvBool(name)
}

// PoolSizeFromEnv reads WG_POOL_SIZE, defaulting to DefaultPoolSize.
func PoolSizeFromEnv() (int, error) {
	return EnvIntOr(EnvPoolSize, DefaultPoolSize)
}
