// Package source defines the immutable data-source descriptor used to
// open driver connections.
package source

import "github.com/querydeck/dbridge/pkg/bridge"

// Source identifies a database the bridge can connect to. Values are
// immutable and freely shared; two sources are the same entry for
// history purposes when their URIs are equal.
type Source struct {
	URI      string `yaml:"uri" json:"uri"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Secret   string `yaml:"-" json:"-"`
}

// New creates a Source.
func New(uri, username, secret string) Source {
	return Source{URI: uri, Username: username, Secret: secret}
}

// Validate checks that the source is usable for a connect call.
func (s Source) Validate() error {
	if s.URI == "" {
		return &bridge.ValidationError{Field: "uri", Reason: "data source URI must not be empty"}
	}
	return nil
}

// Redacted returns a copy with the secret stripped. History and logs
// only ever see redacted sources.
func (s Source) Redacted() Source {
	s.Secret = ""
	return s
}

// String renders the source without its secret.
func (s Source) String() string {
	if s.Username == "" {
		return s.URI
	}
	return s.Username + "@" + s.URI
}
