// Package config loads graphgate configuration.
//
// A configuration file is YAML. The decoded document is validated against
// an embedded CUE schema before it is applied on top of Default, so a typo
// in a field name or an out-of-range value is reported instead of silently
// ignored. The password may also come from the GRAPHGATE_PASSWORD
// environment variable, which wins over the file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/graph"
	"github.com/roach88/graphgate/internal/index"
	"github.com/roach88/graphgate/internal/predicate"
	"github.com/roach88/graphgate/internal/retry"
	"github.com/roach88/graphgate/internal/transport"
)

// PasswordEnv overrides the configured password when set.
const PasswordEnv = "GRAPHGATE_PASSWORD"

//go:embed schema.cue
var schemaSource string

// Config is the complete graphgate configuration.
type Config struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Tenant   string `yaml:"tenant"`

	NodeCacheSize         int  `yaml:"node_cache_size"`
	RelationshipCacheSize int  `yaml:"relationship_cache_size"`
	PageSize              int  `yaml:"page_size"`
	StrictCompile         bool `yaml:"strict_compile"`
	ConnectAttempts       int  `yaml:"connect_attempts"`

	Retry Retry `yaml:"retry"`
}

// Retry configures the transaction retry policy.
type Retry struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	policy := retry.DefaultPolicy()
	opts := entity.DefaultOptions()
	return Config{
		URI:                   "neo4j://localhost:7687",
		Username:              "neo4j",
		NodeCacheSize:         opts.NodeCacheSize,
		RelationshipCacheSize: opts.RelationshipCacheSize,
		PageSize:              index.DefaultPageSize,
		ConnectAttempts:       5,
		Retry: Retry{
			Attempts: policy.Attempts,
			Delay:    Duration(policy.Delay),
		},
	}
}

// Load reads path, or returns Default when path is empty, and applies the
// environment override.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, graph.WrapError(graph.ErrCodeInvalidConfig, "read config file", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Parse validates a YAML document and applies it on top of Default.
func Parse(data []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, graph.WrapError(graph.ErrCodeInvalidConfig, "parse yaml", err)
	}

	cfg := Default()
	if doc == nil {
		return cfg, nil
	}
	if err := validate(doc); err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, graph.WrapError(graph.ErrCodeInvalidConfig, "decode config", err)
	}
	if cfg.Tenant != "" && !predicate.ValidIdentifier(cfg.Tenant) {
		return Config{}, graph.NewError(graph.ErrCodeInvalidConfig, fmt.Sprintf("invalid tenant label %q", cfg.Tenant))
	}
	return cfg, nil
}

// validate checks doc against the #Config definition. Definitions are
// closed, so unknown fields are errors.
func validate(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return graph.WrapError(graph.ErrCodeInvalidConfig, "compile config schema", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return graph.WrapError(graph.ErrCodeInvalidConfig, "config does not match schema", err)
	}
	return nil
}

// ApplyEnv applies environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if pw := getenv(PasswordEnv); pw != "" {
		c.Password = pw
	}
}

// Neo4j returns the transport settings.
func (c Config) Neo4j() transport.Neo4jConfig {
	return transport.Neo4jConfig{
		URI:             c.URI,
		Username:        c.Username,
		Password:        c.Password,
		Database:        c.Database,
		ConnectAttempts: c.ConnectAttempts,
	}
}

// Graph returns the entity session options.
func (c Config) Graph() entity.Options {
	return entity.Options{
		Tenant:                c.Tenant,
		NodeCacheSize:         c.NodeCacheSize,
		RelationshipCacheSize: c.RelationshipCacheSize,
		Retry: retry.Policy{
			Attempts: c.Retry.Attempts,
			Delay:    time.Duration(c.Retry.Delay),
		},
	}
}

// Compiler returns the predicate compiler options.
func (c Config) Compiler() cypher.Options {
	return cypher.Options{Strict: c.StrictCompile}
}

// Index returns the index options.
func (c Config) Index() index.Options {
	return index.Options{PageSize: c.PageSize}
}
