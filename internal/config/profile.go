package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a saved import job read from YAML. Unset fields leave the
// environment configuration alone; command line flags override both.
//
//	format: csv
//	resolve_key: ssn
//	delimiter: ";"
//	header: [ssn, name, city]
//	links: {manager: ssn}
//	whitelist: ["*.csv", "*.csv.lz4"]
//	workers: 8
//	max_attempts: 20
type Profile struct {
	Format      string            `yaml:"format"`
	ResolveKey  string            `yaml:"resolve_key"`
	Delimiter   string            `yaml:"delimiter"`
	Header      []string          `yaml:"header"`
	Sheet       string            `yaml:"sheet"`
	Links       map[string]string `yaml:"links"`
	Whitelist   []string          `yaml:"whitelist"`
	Workers     int               `yaml:"workers"`
	MaxAttempts *int              `yaml:"max_attempts"`
}

// LoadProfile reads a profile file. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	return ParseProfile(f)
}

// ParseProfile decodes a profile from r.
func ParseProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.Delimiter != "" {
		if _, err := ParseDelimiter(p.Delimiter); err != nil {
			return fmt.Errorf("profile delimiter %w", err)
		}
	}
	for column, key := range p.Links {
		if strings.TrimSpace(column) == "" || strings.TrimSpace(key) == "" {
			return fmt.Errorf("profile link %q=%q: column and key are required", column, key)
		}
	}
	if p.Workers < 0 {
		return errors.New("profile workers must be non-negative")
	}
	if p.MaxAttempts != nil && *p.MaxAttempts < 0 {
		return errors.New("profile max_attempts must be non-negative (0 = unbounded)")
	}
	return nil
}

// Apply copies the profile's engine settings over c.
func (p *Profile) Apply(c *ImportConfig) {
	if p.Delimiter != "" {
		c.Delimiter = p.Delimiter
	}
	if len(p.Whitelist) > 0 {
		c.Whitelist = p.Whitelist
	}
	if p.Workers > 0 {
		c.Workers = p.Workers
	}
	if p.MaxAttempts != nil {
		c.MaxAttempts = *p.MaxAttempts
	}
}
