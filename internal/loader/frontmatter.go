// Package loader parses snapshot definition files: SQL with a YAML
// frontmatter block describing how the query's rows are tracked.
package loader

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/driftlake-labs/driftlake/pkg/snapshot"
)

// FrontmatterConfig represents parsed YAML frontmatter.
// Unknown fields cause parse errors (use Meta for extensions).
type FrontmatterConfig struct {
	Name           string
	Description    string
	TargetTable    string
	Schema         string
	Strategy       string
	UniqueKey      []string
	UpdatedAt      string
	CheckCols      []string
	CheckAll       bool
	HardDeletes    string
	ValidToCurrent string
	Meta           map[string]any
}

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Config  *FrontmatterConfig
	SQL     string // SQL content after frontmatter
	HasYAML bool   // Whether frontmatter was found
}

// frontmatterPattern matches /*--- ... ---*/ blocks
// The pattern allows optional content between the delimiters
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// ExtractFrontmatter extracts YAML frontmatter from SQL content.
// Returns the parsed config, remaining SQL, and any error.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{
		Config:  &FrontmatterConfig{},
		SQL:     content,
		HasYAML: false,
	}

	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		// No frontmatter found, return content as-is
		return result, nil
	}

	result.HasYAML = true
	yamlContent := matches[1]

	// Remove the frontmatter block from SQL
	result.SQL = strings.TrimSpace(frontmatterPattern.ReplaceAllString(content, ""))

	// Parse YAML with strict mode to reject unknown fields
	config, err := parseFrontmatterYAML(yamlContent)
	if err != nil {
		return nil, err
	}

	result.Config = config
	return result, nil
}

// stringOrList accepts either a YAML scalar or a sequence of scalars.
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = []string{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings")
	}
}

// checkColsSpec accepts a list of column specifiers or the scalar "all".
type checkColsSpec struct {
	Cols []string
	All  bool
}

func (c *checkColsSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		if !strings.EqualFold(v, "all") {
			return fmt.Errorf("check_cols must be a list of columns or the string \"all\", got %q", v)
		}
		c.All = true
		return nil
	case yaml.SequenceNode:
		return node.Decode(&c.Cols)
	default:
		return fmt.Errorf("check_cols must be a list of columns or the string \"all\"")
	}
}

// frontmatterConfigYAML is an internal type for YAML unmarshaling.
type frontmatterConfigYAML struct {
	Name                  string         `yaml:"name"`
	Description           string         `yaml:"description"`
	TargetTable           string         `yaml:"target_table"`
	Schema                string         `yaml:"schema"`
	Strategy              string         `yaml:"strategy"`
	UniqueKey             stringOrList   `yaml:"unique_key"`
	UpdatedAt             string         `yaml:"updated_at"`
	CheckCols             *checkColsSpec `yaml:"check_cols"`
	HardDeletes           string         `yaml:"hard_deletes"`
	InvalidateHardDeletes *bool          `yaml:"invalidate_hard_deletes"`
	ValidToCurrent        string         `yaml:"dbt_valid_to_current"`
	Meta                  map[string]any `yaml:"meta"`
}

// parseFrontmatterYAML parses YAML content with strict field validation.
func parseFrontmatterYAML(yamlContent string) (*FrontmatterConfig, error) {
	// First, decode into a map to check for unknown fields
	var rawMap map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &rawMap); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}

	// Check for unknown fields
	knownFields := map[string]bool{
		"name":                    true,
		"description":             true,
		"target_table":            true,
		"schema":                  true,
		"strategy":                true,
		"unique_key":              true,
		"updated_at":              true,
		"check_cols":              true,
		"hard_deletes":            true,
		"invalidate_hard_deletes": true,
		"dbt_valid_to_current":    true,
		"meta":                    true,
	}

	for field := range rawMap {
		if !knownFields[field] {
			return nil, &UnknownFieldError{
				Field: field,
			}
		}
	}

	// Now decode into the internal YAML struct
	var yamlConfig frontmatterConfigYAML
	if err := yaml.Unmarshal([]byte(yamlContent), &yamlConfig); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("failed to parse frontmatter: %v", err),
		}
	}

	// Validate strategy value if present; full validation happens on the
	// assembled snapshot config, this just catches typos early.
	if yamlConfig.Strategy != "" {
		validStrategy := map[string]bool{
			string(snapshot.StrategyTimestamp): true,
			string(snapshot.StrategyCheck):     true,
		}
		if !validStrategy[yamlConfig.Strategy] {
			return nil, &FrontmatterParseError{
				Message: fmt.Sprintf("invalid strategy value: %q, must be one of: timestamp, check", yamlConfig.Strategy),
			}
		}
	}

	hardDeletes, err := resolveHardDeletes(yamlConfig.HardDeletes, yamlConfig.InvalidateHardDeletes)
	if err != nil {
		return nil, err
	}

	config := &FrontmatterConfig{
		Name:           yamlConfig.Name,
		Description:    yamlConfig.Description,
		TargetTable:    yamlConfig.TargetTable,
		Schema:         yamlConfig.Schema,
		Strategy:       yamlConfig.Strategy,
		UniqueKey:      yamlConfig.UniqueKey,
		UpdatedAt:      yamlConfig.UpdatedAt,
		HardDeletes:    hardDeletes,
		ValidToCurrent: yamlConfig.ValidToCurrent,
		Meta:           yamlConfig.Meta,
	}
	if yamlConfig.CheckCols != nil {
		config.CheckCols = yamlConfig.CheckCols.Cols
		config.CheckAll = yamlConfig.CheckCols.All
	}

	return config, nil
}

// resolveHardDeletes merges the hard_deletes field with the legacy
// invalidate_hard_deletes boolean. The legacy flag maps to invalidate when
// true and ignore when false; setting both to contradictory values is an
// error.
func resolveHardDeletes(hardDeletes string, legacy *bool) (string, error) {
	if legacy == nil {
		return hardDeletes, nil
	}
	implied := string(snapshot.HardDeleteIgnore)
	if *legacy {
		implied = string(snapshot.HardDeleteInvalidate)
	}
	if hardDeletes == "" || hardDeletes == implied {
		return implied, nil
	}
	return "", &FrontmatterParseError{
		Message: fmt.Sprintf("invalidate_hard_deletes=%v conflicts with hard_deletes=%q", *legacy, hardDeletes),
	}
}

// ApplyDefaults applies default values to a FrontmatterConfig based on file context.
func (c *FrontmatterConfig) ApplyDefaults(filename string) {
	// Default name from filename (without .sql extension)
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filename, ".sql")
	}

	// Default target table to the snapshot name
	if c.TargetTable == "" {
		c.TargetTable = c.Name
	}
}

// SnapshotConfig assembles the merge engine configuration described by the
// frontmatter.
func (c *FrontmatterConfig) SnapshotConfig() snapshot.Config {
	return snapshot.Config{
		Name:           c.Name,
		UniqueKey:      c.UniqueKey,
		Strategy:       snapshot.Strategy(c.Strategy),
		UpdatedAt:      c.UpdatedAt,
		CheckCols:      c.CheckCols,
		CheckAll:       c.CheckAll,
		HardDeletes:    snapshot.HardDeletePolicy(c.HardDeletes),
		ValidToCurrent: c.ValidToCurrent,
	}
}

// FrontmatterParseError represents a frontmatter parsing error.
type FrontmatterParseError struct {
	File    string
	Line    int
	Message string
}

func (e *FrontmatterParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an error for unknown frontmatter fields.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter, use \"meta\" field for custom fields", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
