// Package appconfig defines the application configuration record that brands a
// deployment of the agent console: page copy, feature toggles for the input
// modalities offered to users, theme assets, and optional identifiers for the
// hosted sandbox session service.
//
// Exactly one record is active per running process. The record is immutable
// once constructed: it is decoded (or taken from a built-in literal) at
// start-up, validated, frozen inside a Provider, and handed to consumers as
// value copies. There is no reloading and no merging of sources; a record
// supplied from a file replaces the built-in default wholesale.
//
// Optional fields are pointer-typed so that "unset" stays distinguishable from
// an empty string, both in memory and across the JSON wire format.
package appconfig

import (
	"fmt"
	"strings"
)

// Config is the application configuration record.
//
// Required fields are plain values; optional fields are pointers where nil
// means unset. A set optional field must be non-empty. The JSON names below
// are the external contract consumed by the web front-end.
type Config struct {
	// PageTitle is the document title shown by the front-end. Required.
	PageTitle string `json:"pageTitle"`

	// PageDescription is the meta description for the page. Required.
	PageDescription string `json:"pageDescription"`

	// CompanyName is the brand name displayed throughout the app. Required.
	CompanyName string `json:"companyName"`

	// SupportsChatInput enables the text chat input modality. Required.
	SupportsChatInput bool `json:"supportsChatInput"`

	// SupportsVideoInput enables camera publishing. Required.
	SupportsVideoInput bool `json:"supportsVideoInput"`

	// SupportsScreenShare enables screen share publishing. Required.
	SupportsScreenShare bool `json:"supportsScreenShare"`

	// IsPreConnectBufferEnabled enables microphone buffering while the
	// session is still being established. Required.
	IsPreConnectBufferEnabled bool `json:"isPreConnectBufferEnabled"`

	// Logo is the path or URL of the light-mode logo asset. Required.
	Logo string `json:"logo"`

	// StartButtonText is the label of the call-to-action button. Required.
	StartButtonText string `json:"startButtonText"`

	// Accent is the light-mode accent color. Optional.
	Accent *string `json:"accent,omitempty"`

	// LogoDark is the dark-mode logo asset. Optional.
	LogoDark *string `json:"logoDark,omitempty"`

	// AccentDark is the dark-mode accent color. Optional.
	AccentDark *string `json:"accentDark,omitempty"`

	// SandboxID identifies a hosted sandbox deployment. When set, connection
	// details are obtained from the sandbox token service instead of being
	// minted locally. Optional, absent by default.
	SandboxID *string `json:"sandboxId,omitempty"`

	// AgentName is the agent to dispatch into rooms created for this
	// deployment. Optional, absent by default.
	AgentName *string `json:"agentName,omitempty"`
}

// file is the decode-time shadow of Config. Every field is a pointer so a
// missing key is distinguishable from a zero value after unmarshaling, which
// is what allows required booleans to be presence-checked.
type file struct {
	PageTitle                 *string `json:"pageTitle"`
	PageDescription           *string `json:"pageDescription"`
	CompanyName               *string `json:"companyName"`
	SupportsChatInput         *bool   `json:"supportsChatInput"`
	SupportsVideoInput        *bool   `json:"supportsVideoInput"`
	SupportsScreenShare       *bool   `json:"supportsScreenShare"`
	IsPreConnectBufferEnabled *bool   `json:"isPreConnectBufferEnabled"`
	Logo                      *string `json:"logo"`
	StartButtonText           *string `json:"startButtonText"`
	Accent                    *string `json:"accent"`
	LogoDark                  *string `json:"logoDark"`
	AccentDark                *string `json:"accentDark"`
	SandboxID                 *string `json:"sandboxId"`
	AgentName                 *string `json:"agentName"`
}

// SchemaError reports every way a configuration record fails the schema:
// missing required fields, wrong primitive types, empty required strings, or
// optional fields explicitly set to the empty string.
//
// A SchemaError is fatal at load time. Records are never silently repaired or
// defaulted.
type SchemaError struct {
	// Violations holds one human-readable message per schema violation.
	Violations []string
}

// Error implements the error interface.
// Returns a string in the format "SCHEMA_VIOLATION: details".
func (e *SchemaError) Error() string {
	switch len(e.Violations) {
	case 0:
		return "SCHEMA_VIOLATION: configuration record violates schema"
	case 1:
		return "SCHEMA_VIOLATION: " + e.Violations[0]
	default:
		return fmt.Sprintf("SCHEMA_VIOLATION: %d violations: %s",
			len(e.Violations), strings.Join(e.Violations, "; "))
	}
}

// String returns a pointer to s.
// Convenience for populating optional fields in configuration literals.
func String(s string) *string {
	return &s
}

// cloneString duplicates an optional field so copies never share storage.
func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy of the record. Optional field pointers are
// duplicated, so mutating the copy can never reach the original.
func (c Config) Clone() Config {
	c.Accent = cloneString(c.Accent)
	c.LogoDark = cloneString(c.LogoDark)
	c.AccentDark = cloneString(c.AccentDark)
	c.SandboxID = cloneString(c.SandboxID)
	c.AgentName = cloneString(c.AgentName)
	return c
}
