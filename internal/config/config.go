// Package config resolves the launcher configuration.
//
// The historical wrappers read GHIDRA_ROOT and BKC_ROOT straight from the
// process environment at every use site. Here the ambient reads are
// confined to FromEnv, which produces an explicit Config struct that the
// rest of the application receives as a parameter. This keeps the
// launcher logic testable without manipulating the process environment.
//
// An optional YAML overrides file (--config) is layered on top of the
// environment-derived values; it never introduces new required settings.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// Environment variables consumed by FromEnv. Both are required; the
// launcher refuses to touch the filesystem without them.
const (
	// EnvGhidraRoot points at the Ghidra installation root. The headless
	// entry point lives at <root>/support/analyzeHeadless.
	EnvGhidraRoot = "GHIDRA_ROOT"

	// EnvToolkitRoot points at the fuzzing toolkit checkout, which hosts
	// the unique-edges extraction helper.
	EnvToolkitRoot = "BKC_ROOT"
)

// Defaults for the tunable settings. These match the values hardcoded in
// the historical wrappers.
const (
	// DefaultProjectName is the Ghidra project name used inside the
	// work directory's project folder.
	DefaultProjectName = "cov_analysis"

	// DefaultEdgeSymlink is the fixed, well-known path through which the
	// downstream analysis script discovers the unique-edges list. The
	// headless engine offers no way to pass the list as a script
	// argument, hence the symlink.
	DefaultEdgeSymlink = "/tmp/edges_uniq.lst"

	// DefaultPrescript is the stock Ghidra script run before the
	// postscript to query and set analysis options.
	DefaultPrescript = "GetAndSetAnalysisOptionsScript.java"
)

// Config holds all settings the launcher needs. It is populated once at
// startup (FromEnv, optionally ApplyFile) and passed down explicitly.
type Config struct {
	// GhidraRoot is the Ghidra installation root (from GHIDRA_ROOT).
	GhidraRoot string `yaml:"ghidra_root"`

	// ToolkitRoot is the fuzzing toolkit root (from BKC_ROOT).
	ToolkitRoot string `yaml:"toolkit_root"`

	// ProjectName is the Ghidra project name inside the project directory.
	ProjectName string `yaml:"project_name"`

	// EdgeSymlink is the fixed path at which the unique-edges list is
	// linked for the analysis script to find.
	EdgeSymlink string `yaml:"edge_symlink"`

	// Prescript is the engine script run before the postscript.
	Prescript string `yaml:"prescript"`
}

// FromEnv builds a Config from the process environment. Each missing
// required variable is a config error; defaults fill the tunables.
func FromEnv() (*Config, error) {
	ghidraRoot := os.Getenv(EnvGhidraRoot)
	if ghidraRoot == "" {
		return nil, model.NewCLIError(model.KindConfig,
			fmt.Sprintf("%s is not set: point it at your Ghidra installation", EnvGhidraRoot))
	}

	toolkitRoot := os.Getenv(EnvToolkitRoot)
	if toolkitRoot == "" {
		return nil, model.NewCLIError(model.KindConfig,
			fmt.Sprintf("%s is not set: point it at your toolkit checkout", EnvToolkitRoot))
	}

	return &Config{
		GhidraRoot:  ghidraRoot,
		ToolkitRoot: toolkitRoot,
		ProjectName: DefaultProjectName,
		EdgeSymlink: DefaultEdgeSymlink,
		Prescript:   DefaultPrescript,
	}, nil
}

// ApplyFile merges a YAML overrides file into the Config. Only fields
// present in the file replace existing values; an unknown field is an
// error so typos surface instead of being silently ignored.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.KindConfig,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var overrides Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overrides); err != nil {
		return model.WrapCLIError(model.KindConfig,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	if overrides.GhidraRoot != "" {
		c.GhidraRoot = overrides.GhidraRoot
	}
	if overrides.ToolkitRoot != "" {
		c.ToolkitRoot = overrides.ToolkitRoot
	}
	if overrides.ProjectName != "" {
		c.ProjectName = overrides.ProjectName
	}
	if overrides.EdgeSymlink != "" {
		c.EdgeSymlink = overrides.EdgeSymlink
	}
	if overrides.Prescript != "" {
		c.Prescript = overrides.Prescript
	}
	return nil
}

// HeadlessBin returns the path to the engine's headless entry point.
func (c *Config) HeadlessBin() string {
	return filepath.Join(c.GhidraRoot, "support", "analyzeHeadless")
}

// EdgeTool returns the path to the unique-edges extraction helper.
func (c *Config) EdgeTool() string {
	return filepath.Join(c.ToolkitRoot, "scripts", "unique_edges.sh")
}
