// Package config loads the settings document of a verification run.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override the document.
const (
	EnvClientID     = "SDS_CLIENT_ID"
	EnvClientSecret = "SDS_CLIENT_SECRET"
	EnvResource     = "SDS_RESOURCE"
)

// Settings identifies the resources of a run and how to reach the store.
// Field names follow the appsettings.json document.
type Settings struct {
	NamespaceID  string `yaml:"NamespaceId" json:"NamespaceId"`
	TypeID       string `yaml:"TypeId" json:"TypeId"`
	StreamID     string `yaml:"StreamId" json:"StreamId"`
	APIVersion   string `yaml:"ApiVersion" json:"ApiVersion"`
	TenantID     string `yaml:"TenantId" json:"TenantId"`
	Resource     string `yaml:"Resource" json:"Resource"`
	ClientID     string `yaml:"ClientId" json:"ClientId"`
	ClientSecret string `yaml:"ClientSecret" json:"ClientSecret"`
}

// Error reports a settings document that cannot be used. A run never
// starts after one.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the document at path (JSON or YAML), applies environment
// overrides and validates the result.
func Load(path string) (Settings, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, &Error{Path: path, Err: err}
	}

	s, err := Parse(data, lookup)
	if err != nil {
		return Settings{}, &Error{Path: path, Err: err}
	}
	return s, nil
}

// Parse decodes a settings document, applies overrides from lookup (which
// may be nil) and validates the result.
func Parse(data []byte, lookup func(string) (string, bool)) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("parse: %w", err)
	}

	if lookup != nil {
		override(&s.ClientID, EnvClientID, lookup)
		override(&s.ClientSecret, EnvClientSecret, lookup)
		override(&s.Resource, EnvResource, lookup)
	}
	s.Resource = strings.TrimRight(s.Resource, "/")

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func override(field *string, name string, lookup func(string) (string, bool)) {
	if v, ok := lookup(name); ok && v != "" {
		*field = v
	}
}

// Validate checks s against the embedded CUE schema.
func (s Settings) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Settings"))
	v := def.Unify(ctx.Encode(s))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			msgs = append(msgs, strings.Join(e.Path(), ".")+": "+fmt.Sprintf(format, args...))
		}
		return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// WithRunSuffix returns a copy whose type and stream ids end in suffix.
func (s Settings) WithRunSuffix(suffix string) Settings {
	s.TypeID = s.TypeID + "-" + suffix
	s.StreamID = s.StreamID + "-" + suffix
	return s
}

// Unique returns a copy with a random run suffix on the type and stream
// ids, so concurrent runs do not share resources.
func (s Settings) Unique() Settings {
	return s.WithRunSuffix(uuid.NewString()[:8])
}

// LogValue implements slog.LogValuer. The client secret is never logged.
func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("namespace_id", s.NamespaceID),
		slog.String("type_id", s.TypeID),
		slog.String("stream_id", s.StreamID),
		slog.String("api_version", s.APIVersion),
		slog.String("tenant_id", s.TenantID),
		slog.String("resource", s.Resource),
		slog.String("client_id", s.ClientID),
	)
}
