package site

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load parses a site configuration document. Environment variable references
// are substituted before parsing, defaults are applied, and the result is
// validated. Version is set to the hash of the substituted content so that
// two loads of identical content share structural cache entries.
func Load(data []byte) (*SiteConfiguration, error) {
	substituted := substituteEnv(string(data))

	var cfg SiteConfiguration
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parse site configuration: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site configuration: %w", err)
	}

	sum := sha256.Sum256([]byte(substituted))
	cfg.Version = hex.EncodeToString(sum[:])

	return &cfg, nil
}

// LoadFile reads and parses a site configuration from disk.
func LoadFile(path string) (*SiteConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site configuration: %w", err)
	}
	cfg, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *SiteConfiguration) {
	for i := range cfg.RoutePatterns {
		p := &cfg.RoutePatterns[i]
		if p.Action == "" {
			p.Action = "NAVIGATE"
		}
		for name, spec := range p.Parameters {
			if spec.Type == "" {
				spec.Type = ParameterString
				p.Parameters[name] = spec
			}
		}
	}
	for _, name := range cfg.Entities.Names() {
		def := cfg.Entities.defs[name]
		if def.IDField == "" {
			def.IDField = "id"
			cfg.Entities.defs[name] = def
		}
	}
}

// substituteEnv replaces ${VAR} with the variable's value and
// ${VAR:-default} with the value or the default when unset.
func substituteEnv(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(ref string) string {
		expr := ref[2 : len(ref)-1]
		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if v, set := os.LookupEnv(name); set {
				return v
			}
			return def
		}
		return os.Getenv(expr)
	})
}
