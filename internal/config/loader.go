package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"picoedge.com/ijpkg/internal/core/domain"
)

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	// ProjectDir is the project root; empty means the working directory
	ProjectDir string

	// ConfigPath overrides <ProjectDir>/ijpkg.yaml. An explicit path must exist.
	ConfigPath string

	// Overrides are values from command-line flags, keyed like Entries
	Overrides map[string]string

	// OverrideFlags maps an override key to the flag that set it, for Source
	OverrideFlags map[string]string

	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// field binds a scalar configuration key to its environment variable
type field struct {
	key string
	env string
	get func(*Config) string
	set func(*Config, string)
}

var fields = []field{
	{key: "group", get: func(c *Config) string { return c.Group }, set: func(c *Config, v string) { c.Group = v }},
	{key: "name", get: func(c *Config) string { return c.Name }, set: func(c *Config, v string) { c.Name = v }},
	{key: "version", env: "IJPKG_VERSION", get: func(c *Config) string { return c.Version }, set: func(c *Config, v string) { c.Version = v }},
	{key: "intellij.version", get: func(c *Config) string { return c.IntelliJ.Version }, set: func(c *Config, v string) { c.IntelliJ.Version = v }},
	{key: "intellij.type", get: func(c *Config) string { return c.IntelliJ.Type }, set: func(c *Config, v string) { c.IntelliJ.Type = v }},
	{key: "compile.sourceCompatibility", get: func(c *Config) string { return c.Compile.SourceCompatibility }, set: func(c *Config, v string) { c.Compile.SourceCompatibility = v }},
	{key: "compile.targetCompatibility", get: func(c *Config) string { return c.Compile.TargetCompatibility }, set: func(c *Config, v string) { c.Compile.TargetCompatibility = v }},
	{key: "compile.sourceDir", get: func(c *Config) string { return c.Compile.SourceDir }, set: func(c *Config, v string) { c.Compile.SourceDir = v }},
	{key: "compile.resourceDir", get: func(c *Config) string { return c.Compile.ResourceDir }, set: func(c *Config, v string) { c.Compile.ResourceDir = v }},
	{key: "patchPluginXml.sinceBuild", env: "IJPKG_SINCE_BUILD", get: func(c *Config) string { return c.PatchXML.SinceBuild }, set: func(c *Config, v string) { c.PatchXML.SinceBuild = v }},
	{key: "patchPluginXml.untilBuild", env: "IJPKG_UNTIL_BUILD", get: func(c *Config) string { return c.PatchXML.UntilBuild }, set: func(c *Config, v string) { c.PatchXML.UntilBuild = v }},
	{key: "patchPluginXml.pluginDescription", get: func(c *Config) string { return c.PatchXML.PluginDescription }, set: func(c *Config, v string) { c.PatchXML.PluginDescription = v }},
	{key: "patchPluginXml.changeNotes", get: func(c *Config) string { return c.PatchXML.ChangeNotes }, set: func(c *Config, v string) { c.PatchXML.ChangeNotes = v }},
	{key: "runIde.ideDir", env: "IJPKG_IDE_DIR", get: func(c *Config) string { return c.RunIDE.IDEDir }, set: func(c *Config, v string) { c.RunIDE.IDEDir = v }},
	{key: "publishPlugin.endpoint", get: func(c *Config) string { return c.Publish.Endpoint }, set: func(c *Config, v string) { c.Publish.Endpoint = v }},
	{key: "publishPlugin.channel", env: "IJPKG_PUBLISH_CHANNEL", get: func(c *Config) string { return c.Publish.Channel }, set: func(c *Config, v string) { c.Publish.Channel = v }},
	{key: "publishPlugin.tokenEnv", get: func(c *Config) string { return c.Publish.TokenEnv }, set: func(c *Config, v string) { c.Publish.TokenEnv = v }},
	{key: "build.dir", get: func(c *Config) string { return c.Build.Dir }, set: func(c *Config, v string) { c.Build.Dir = v }},
	{key: "build.cacheDir", env: "IJPKG_CACHE_DIR", get: func(c *Config) string { return c.Build.CacheDir }, set: func(c *Config, v string) { c.Build.CacheDir = v }},
}

// list keys are file-only
var listFields = []struct {
	key string
	get func(*Config) []string
}{
	{"repositories", func(c *Config) []string {
		out := make([]string, 0, len(c.Repositories))
		for _, r := range c.Repositories {
			out = append(out, r.Name+"="+r.URL)
		}
		return out
	}},
	{"dependencies.implementation", func(c *Config) []string { return c.Dependencies.Implementation }},
	{"dependencies.compileOnly", func(c *Config) []string { return c.Dependencies.CompileOnly }},
	{"intellij.plugins", func(c *Config) []string { return c.IntelliJ.Plugins }},
}

// Load builds the configuration with precedence defaults < file < env < flags
func Load(opts LoadOptions) (Config, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, domain.NewConfigurationError("cannot determine working directory", err)
		}
		projectDir = wd
	}
	projectDir, err := filepath.Abs(expandHome(projectDir))
	if err != nil {
		return Config{}, domain.NewConfigurationError("invalid project directory", err)
	}

	cfg := Default(projectDir)
	cfg.sources = make(map[string]Source)

	if err := loadFile(&cfg, opts.ConfigPath); err != nil {
		return Config{}, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, f := range fields {
		if f.env == "" {
			continue
		}
		if v, ok := lookup(f.env); ok && v != "" {
			f.set(&cfg, v)
			cfg.sources[f.key] = Source{Kind: "env", Path: f.env}
		}
	}

	keys := make([]string, 0, len(opts.Overrides))
	for k := range opts.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := lookupField(k)
		if !ok {
			return Config{}, domain.NewConfigurationError(fmt.Sprintf("unknown configuration key %q", k), nil)
		}
		f.set(&cfg, opts.Overrides[k])
		cfg.sources[k] = Source{Kind: "flag", Path: opts.OverrideFlags[k]}
	}

	return cfg, nil
}

// FilePath returns the configuration file Load reads for projectDir.
// explicit, when set, is resolved against projectDir.
func FilePath(projectDir, explicit string) string {
	if explicit == "" {
		return filepath.Join(projectDir, FileName)
	}
	explicit = expandHome(explicit)
	if filepath.IsAbs(explicit) {
		return explicit
	}
	return filepath.Join(projectDir, explicit)
}

func loadFile(cfg *Config, explicit string) error {
	path := FilePath(cfg.ProjectDir, explicit)

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && explicit == "" {
			return nil
		}
		return domain.NewConfigurationError("failed to read config file", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewConfigurationError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return domain.NewConfigurationError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	for _, key := range flattenKeys("", raw) {
		cfg.sources[key] = Source{Kind: "file", Path: path}
	}
	return nil
}

// flattenKeys returns dotted paths to every non-map value
func flattenKeys(prefix string, m map[string]interface{}) []string {
	var keys []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(key, nested)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// IsKey reports whether key can be overridden from the command line
func IsKey(key string) bool {
	_, ok := lookupField(key)
	return ok
}

// Entry is one configuration value with its origin
type Entry struct {
	Key    string
	Value  string
	Source Source
}

// Entries lists every configuration value in a stable order
func (c Config) Entries() []Entry {
	entries := make([]Entry, 0, len(fields)+len(listFields))
	for _, f := range fields {
		entries = append(entries, Entry{Key: f.key, Value: f.get(&c), Source: c.Source(f.key)})
	}
	for _, f := range listFields {
		entries = append(entries, Entry{Key: f.key, Value: strings.Join(f.get(&c), ", "), Source: c.Source(f.key)})
	}
	return entries
}
