package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(strings.NewReader(`
format: tsv
resolve_key: ssn
header: [ssn, name]
links: {manager: ssn}
whitelist: ["*.tsv"]
workers: 8
max_attempts: 0
`))
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}

	if p.Format != "tsv" || p.ResolveKey != "ssn" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Header) != 2 || p.Header[1] != "name" {
		t.Errorf("Header = %v, want [ssn name]", p.Header)
	}
	if p.MaxAttempts == nil || *p.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %v, want explicit 0", p.MaxAttempts)
	}
	if p.Links["manager"] != "ssn" {
		t.Errorf("Links = %v, want manager: ssn", p.Links)
	}
}

func TestParseProfile_Empty(t *testing.T) {
	p, err := ParseProfile(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}
	if p.MaxAttempts != nil || p.Workers != 0 {
		t.Errorf("empty profile = %+v, want zero value", p)
	}
}

func TestParseProfile_UnknownKey(t *testing.T) {
	if _, err := ParseProfile(strings.NewReader("resolvekey: ssn\n")); err == nil {
		t.Error("ParseProfile() should reject unknown keys")
	}
}

func TestParseProfile_Invalid(t *testing.T) {
	for _, in := range []string{
		"delimiter: ';;'\n",
		"workers: -1\n",
		"max_attempts: -2\n",
		"links: {manager: ''}\n",
	} {
		if _, err := ParseProfile(strings.NewReader(in)); err == nil {
			t.Errorf("ParseProfile(%q) should fail", in)
		}
	}
}

func TestProfile_Apply(t *testing.T) {
	c := ImportConfig{Workers: 4, MaxAttempts: 10, Delimiter: ","}
	zero := 0
	p := &Profile{Delimiter: "|", Workers: 2, MaxAttempts: &zero}

	p.Apply(&c)

	if c.Delimiter != "|" || c.Workers != 2 || c.MaxAttempts != 0 {
		t.Errorf("Apply() = %+v", c)
	}

	(&Profile{}).Apply(&c)
	if c.Delimiter != "|" || c.Workers != 2 {
		t.Errorf("empty profile changed config: %+v", c)
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte("format: csv\nresolve_key: id\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if p.ResolveKey != "id" {
		t.Errorf("ResolveKey = %q, want id", p.ResolveKey)
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadProfile() should fail for a missing file")
	}
}
