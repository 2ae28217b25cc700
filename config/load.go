package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/velograph"
)

// Parse decodes a YAML document into a Config. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a YAML document from r.
func Decode(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	c := &Config{}
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, velograph.NewConfigError("", fmt.Errorf("%w: empty document", velograph.ErrConfigInvalid))
		}
		return nil, velograph.NewConfigError("", fmt.Errorf("%w: %v", velograph.ErrConfigInvalid, err))
	}
	return c, nil
}

// Load reads and decodes the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, velograph.NewConfigError(path, err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, velograph.NewConfigError(path, err)
	}
	return c, nil
}

// LoadAll loads every file and composes them into one Config.
func LoadAll(paths ...string) (*Config, error) {
	cfgs := make([]*Config, 0, len(paths))
	for _, p := range paths {
		c, err := Load(p)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, c)
	}
	return Compose(cfgs...)
}

// Compose merges configs into one, keeping the order of types and endpoints.
// All configs must share the same version. Duplicates introduced by the merge
// are left for Validate to report.
func Compose(cfgs ...*Config) (*Config, error) {
	if len(cfgs) == 0 {
		return nil, velograph.NewConfigError("", fmt.Errorf("%w: nothing to compose", velograph.ErrConfigInvalid))
	}
	out := &Config{Version: cfgs[0].Version}
	for _, c := range cfgs {
		if c.Version != out.Version {
			return nil, velograph.NewConfigError("version",
				fmt.Errorf("%w: %d and %d", velograph.ErrConfigVersionMismatched, out.Version, c.Version))
		}
		c = c.Clone()
		out.Model = append(out.Model, c.Model...)
		out.Endpoints = append(out.Endpoints, c.Endpoints...)
	}
	return out, nil
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
