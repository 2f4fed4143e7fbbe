// Package config loads and validates the proxy's route table from a
// YAML file, resolving `ENV:NAME` secret references and applying the
// default timeout. It is the only package that touches the process
// environment or a config file; the core (route, session, trajectory,
// reasoning, translate, upstream, proxy) never reads either directly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/relaymesh/llmproxy/internal/route"
)

// Config is the root on-disk shape (§6 EXTERNAL INTERFACES).
type Config struct {
	Routes   []RouteConfig  `yaml:"routes"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// DefaultsConfig holds table-wide fallbacks.
type DefaultsConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RouteConfig is one entry of the `routes` list.
type RouteConfig struct {
	Name     string         `yaml:"name"`
	Model    string         `yaml:"model"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Tools    []ToolConfig   `yaml:"tools"`
}

// ToolConfig declares a tool entry in a route's config. InputSchema is
// the Anthropic-shaped input_schema / OpenAI function parameters
// document; it's validated as a JSON Schema once at load time, so a
// malformed schema fails at startup. BuildRouteTable does not carry
// tools into the route table: configured tools are not added to any
// request.
type ToolConfig struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	InputSchema map[string]interface{} `yaml:"input_schema"`
}

// UpstreamConfig describes the upstream endpoint a route forwards to.
type UpstreamConfig struct {
	Provider          string `yaml:"provider"`
	BaseURL           string `yaml:"base_url"`
	UpstreamModelName string `yaml:"upstream_model_name"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	APIKeyRef         string `yaml:"api_key_ref"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

const defaultTimeoutSeconds = 120

// Load reads and parses a route-config YAML file from path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses raw YAML bytes into a Config and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural requirements independent of secret
// resolution (resolution happens in BuildRouteTable, since a missing
// env var is a distinct failure mode from a malformed document).
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("routes must be a non-empty list")
	}
	for i, r := range c.Routes {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("routes[%d] requires non-empty name", i)
		}
		if strings.TrimSpace(r.Upstream.BaseURL) == "" {
			return fmt.Errorf("routes[%d].upstream requires base_url", i)
		}
		provider := strings.ToLower(strings.TrimSpace(r.Upstream.Provider))
		if provider != "openai" && provider != "anthropic" && provider != "bedrock" {
			return fmt.Errorf("routes[%d].upstream.provider must be openai, anthropic, or bedrock", i)
		}
		if r.Upstream.UpstreamModelName == "" && r.Upstream.Model == "" {
			return fmt.Errorf("routes[%d].upstream requires upstream_model_name or model", i)
		}
		if provider != "bedrock" && r.Upstream.APIKey == "" && r.Upstream.APIKeyRef == "" {
			return fmt.Errorf("routes[%d] requires upstream.api_key or upstream.api_key_ref (ENV:KEY)", i)
		}
		for j, tool := range r.Tools {
			if strings.TrimSpace(tool.Name) == "" {
				return fmt.Errorf("routes[%d].tools[%d] requires a name", i, j)
			}
			if tool.InputSchema == nil {
				continue
			}
			if err := validateToolSchema(tool.Name, tool.InputSchema); err != nil {
				return fmt.Errorf("routes[%d].tools[%d] (%s): %w", i, j, tool.Name, err)
			}
		}
	}
	return nil
}

// validateToolSchema confirms schema is itself a well-formed JSON
// Schema document, independent of any value it will later validate.
func validateToolSchema(toolName string, schema map[string]interface{}) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode input_schema: %w", err)
	}
	if _, err := jsonschema.CompileString(toolName+".input_schema.json", string(raw)); err != nil {
		return fmt.Errorf("invalid input_schema: %w", err)
	}
	return nil
}

// resolveRef resolves a bare value or an `ENV:NAME` reference against
// the process environment.
func resolveRef(value string) (string, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return "", nil
	}
	if rest, ok := strings.CutPrefix(text, "ENV:"); ok {
		key := strings.TrimSpace(rest)
		if key == "" {
			return "", fmt.Errorf("ENV reference must name a key")
		}
		v, ok := os.LookupEnv(key)
		if !ok {
			return "", fmt.Errorf("cannot resolve environment variable %q", key)
		}
		return v, nil
	}
	return text, nil
}

// BuildRouteTable resolves every route's secret reference and its
// effective timeout, producing the immutable route.Table the core
// consumes.
func (c *Config) BuildRouteTable() (*route.Table, error) {
	defaultTimeout := c.Defaults.TimeoutSeconds
	if defaultTimeout == 0 {
		defaultTimeout = defaultTimeoutSeconds
	}

	routes := make([]route.Route, 0, len(c.Routes))
	for i, rc := range c.Routes {
		requestModel := rc.Model
		if requestModel == "" {
			requestModel = rc.Name
		}

		upstreamModel := rc.Upstream.UpstreamModelName
		if upstreamModel == "" {
			upstreamModel = rc.Upstream.Model
		}

		timeout := rc.Upstream.TimeoutSeconds
		if timeout == 0 {
			timeout = defaultTimeout
		}

		ref := rc.Upstream.APIKeyRef
		if ref == "" {
			ref = rc.Upstream.APIKey
		}
		apiKey, err := resolveRef(ref)
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}

		routes = append(routes, route.Route{
			Name:             rc.Name,
			RequestModel:     requestModel,
			UpstreamProtocol: route.Protocol(strings.ToLower(rc.Upstream.Provider)),
			UpstreamBaseURL:  strings.TrimRight(rc.Upstream.BaseURL, "/"),
			UpstreamModel:    upstreamModel,
			UpstreamAPIKey:   apiKey,
			TimeoutSeconds:   timeout,
		})
	}

	return route.NewTable(routes)
}
