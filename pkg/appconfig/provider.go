package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
)

// Parse decodes a single JSON configuration record and validates it against
// the schema.
//
// Decoding goes through a shadow struct whose fields are all pointers, so a
// required field that is absent from the document is detected as missing
// rather than silently taking its zero value. Unknown keys are ignored;
// validation is structural only.
//
// Returns a *SchemaError when the record violates the schema, or a plain
// error when the document is not valid JSON at all.
func Parse(data []byte) (Config, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Config{}, &SchemaError{Violations: []string{
				fmt.Sprintf("field %q must be a %s", typeErr.Field, jsonTypeName(typeErr.Type)),
			}}
		}
		return Config{}, fmt.Errorf("parse configuration record: %w", err)
	}
	return f.resolve()
}

// LoadFile reads path and parses it as a configuration record.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read configuration record: %w", err)
	}
	return Parse(data)
}

// jsonTypeName maps a destination Go type to the JSON type name used in
// violation messages.
func jsonTypeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Bool {
		return "boolean"
	}
	return "string"
}

// resolve turns the decoded shadow struct into a Config, collecting every
// schema violation instead of stopping at the first.
func (f *file) resolve() (Config, error) {
	var violations []string

	requireString := func(name string, v *string, nonEmpty bool) string {
		if v == nil {
			violations = append(violations, fmt.Sprintf("missing required field %q", name))
			return ""
		}
		if nonEmpty && *v == "" {
			violations = append(violations, fmt.Sprintf("required field %q must not be empty", name))
		}
		return *v
	}
	requireBool := func(name string, v *bool) bool {
		if v == nil {
			violations = append(violations, fmt.Sprintf("missing required field %q", name))
			return false
		}
		return *v
	}
	optional := func(name string, v *string) *string {
		if v != nil && *v == "" {
			violations = append(violations, fmt.Sprintf("optional field %q must not be empty when set", name))
		}
		return cloneString(v)
	}

	cfg := Config{
		PageTitle:                 requireString("pageTitle", f.PageTitle, true),
		PageDescription:           requireString("pageDescription", f.PageDescription, true),
		CompanyName:               requireString("companyName", f.CompanyName, true),
		SupportsChatInput:         requireBool("supportsChatInput", f.SupportsChatInput),
		SupportsVideoInput:        requireBool("supportsVideoInput", f.SupportsVideoInput),
		SupportsScreenShare:       requireBool("supportsScreenShare", f.SupportsScreenShare),
		IsPreConnectBufferEnabled: requireBool("isPreConnectBufferEnabled", f.IsPreConnectBufferEnabled),
		Logo:                      requireString("logo", f.Logo, false),
		StartButtonText:           requireString("startButtonText", f.StartButtonText, true),
		Accent:                    optional("accent", f.Accent),
		LogoDark:                  optional("logoDark", f.LogoDark),
		AccentDark:                optional("accentDark", f.AccentDark),
		SandboxID:                 optional("sandboxId", f.SandboxID),
		AgentName:                 optional("agentName", f.AgentName),
	}

	if len(violations) > 0 {
		return Config{}, &SchemaError{Violations: violations}
	}
	return cfg, nil
}

// Validate checks a record that was constructed in code rather than decoded.
//
// Required strings must be non-empty where the schema says so, and optional
// fields must not be set to the empty string. Presence of required boolean
// keys can only be verified at decode time (see Parse); on a constructed
// record every boolean is well-defined by the type system.
func (c Config) Validate() error {
	var violations []string

	nonEmpty := func(name, v string) {
		if v == "" {
			violations = append(violations, fmt.Sprintf("required field %q must not be empty", name))
		}
	}
	optional := func(name string, v *string) {
		if v != nil && *v == "" {
			violations = append(violations, fmt.Sprintf("optional field %q must not be empty when set", name))
		}
	}

	nonEmpty("pageTitle", c.PageTitle)
	nonEmpty("pageDescription", c.PageDescription)
	nonEmpty("companyName", c.CompanyName)
	nonEmpty("startButtonText", c.StartButtonText)
	optional("accent", c.Accent)
	optional("logoDark", c.LogoDark)
	optional("accentDark", c.AccentDark)
	optional("sandboxId", c.SandboxID)
	optional("agentName", c.AgentName)

	if len(violations) > 0 {
		return &SchemaError{Violations: violations}
	}
	return nil
}

// Provider holds the single active configuration record for a process.
//
// The record is validated and frozen at construction. Every read returns a
// deep copy, so no consumer can mutate the active record or observe another
// consumer's mutations. Reads are safe for concurrent use without locking
// because the stored record never changes.
type Provider struct {
	cfg Config
}

// NewProvider validates cfg and freezes it as the active record.
//
// Returns a *SchemaError if cfg violates the schema. The provider keeps its
// own deep copy, so later mutations of cfg by the caller are not observed.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg.Clone()}, nil
}

// Config returns a deep copy of the active record.
// Repeated calls yield equal values for the lifetime of the process.
func (p *Provider) Config() Config {
	return p.cfg.Clone()
}
