package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/binding"
)

const (
	// JSONFileName is the JSON configuration file name.
	JSONFileName = "viewstate.json"

	// YAMLFileName is the YAML configuration file name.
	YAMLFileName = "viewstate.yaml"

	// DefaultDevPort is the default devtools server port.
	DefaultDevPort = 7070

	// DefaultDevHost is the default devtools server host.
	DefaultDevHost = "localhost"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
)

// Config represents a viewstate.json or viewstate.yaml file.
type Config struct {
	// Name labels the project in logs and metrics.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Binding holds the binding options.
	Binding BindingConfig `json:"binding" yaml:"binding"`

	// Devtools contains development server configuration.
	Devtools DevtoolsConfig `json:"devtools" yaml:"devtools"`

	// Log contains logging configuration.
	Log LogConfig `json:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// BindingConfig mirrors binding.Options in file form.
type BindingConfig struct {
	// Strategy is "diff" or "patch".
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	Pick []string `json:"pick,omitempty" yaml:"pick,omitempty"`
	Omit []string `json:"omit,omitempty" yaml:"omit,omitempty"`

	// IncludeComputed defaults to true when absent.
	IncludeComputed *bool `json:"includeComputed,omitempty" yaml:"includeComputed,omitempty"`

	MaxPatchKeys    int `json:"maxPatchKeys,omitempty" yaml:"maxPatchKeys,omitempty"`
	MaxPayloadBytes int `json:"maxPayloadBytes,omitempty" yaml:"maxPayloadBytes,omitempty"`

	MergeSibling MergeSiblingConfig `json:"mergeSibling" yaml:"mergeSibling"`

	ComputedCompare CompareConfig `json:"computedCompare" yaml:"computedCompare"`

	Prelink BudgetConfig `json:"prelink" yaml:"prelink"`

	ElevateTopKeyThreshold int `json:"elevateTopKeyThreshold,omitempty" yaml:"elevateTopKeyThreshold,omitempty"`

	ToPlain BudgetConfig `json:"toPlain" yaml:"toPlain"`

	Debug DebugConfig `json:"debug" yaml:"debug"`
}

// MergeSiblingConfig configures sibling merging.
type MergeSiblingConfig struct {
	// Threshold of zero disables merging.
	Threshold         int     `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	MaxInflationRatio float64 `json:"maxInflationRatio,omitempty" yaml:"maxInflationRatio,omitempty"`
	MaxParentBytes    int     `json:"maxParentBytes,omitempty" yaml:"maxParentBytes,omitempty"`
	SkipArray         *bool   `json:"skipArray,omitempty" yaml:"skipArray,omitempty"`
}

// CompareConfig configures computed comparison.
type CompareConfig struct {
	// Mode is "reference", "shallow" or "deep".
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxDepth int    `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	MaxKeys  int    `json:"maxKeys,omitempty" yaml:"maxKeys,omitempty"`
}

// BudgetConfig bounds a tree walk.
type BudgetConfig struct {
	MaxDepth int `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	MaxKeys  int `json:"maxKeys,omitempty" yaml:"maxKeys,omitempty"`
}

// DebugConfig configures flush telemetry.
type DebugConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// When is "always" or "fallback".
	When       string  `json:"when,omitempty" yaml:"when,omitempty"`
	SampleRate float64 `json:"sampleRate,omitempty" yaml:"sampleRate,omitempty"`
}

// DevtoolsConfig contains devtools server settings.
type DevtoolsConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`

	// EventBuffer is the number of debug events kept for new clients.
	EventBuffer int `json:"eventBuffer,omitempty" yaml:"eventBuffer,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `json:"json,omitempty" yaml:"json,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	d := binding.DefaultOptions()
	include, skip := true, true
	return &Config{
		Binding: BindingConfig{
			Strategy:        string(d.Strategy),
			IncludeComputed: &include,
			MaxPatchKeys:    d.MaxPatchKeys,
			MaxPayloadBytes: d.MaxPayloadBytes,
			MergeSibling: MergeSiblingConfig{
				MaxInflationRatio: d.MergeSiblingMaxInflationRatio,
				MaxParentBytes:    d.MergeSiblingMaxParentBytes,
				SkipArray:         &skip,
			},
			ComputedCompare: CompareConfig{
				Mode:     string(d.ComputedCompare),
				MaxDepth: d.ComputedCompareMaxDepth,
				MaxKeys:  d.ComputedCompareMaxKeys,
			},
			Prelink:                BudgetConfig{MaxDepth: d.PrelinkMaxDepth, MaxKeys: d.PrelinkMaxKeys},
			ElevateTopKeyThreshold: d.ElevateTopKeyThreshold,
			ToPlain:                BudgetConfig{MaxDepth: d.ToPlainMaxDepth, MaxKeys: d.ToPlainMaxKeys},
			Debug: DebugConfig{
				When:       string(d.DebugWhen),
				SampleRate: d.DebugSampleRate,
			},
		},
		Devtools: DevtoolsConfig{
			Host:        DefaultDevHost,
			Port:        DefaultDevPort,
			EventBuffer: 256,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration from dir, preferring viewstate.json over
// viewstate.yaml.
func Load(dir string) (*Config, error) {
	for _, name := range []string{JSONFileName, YAMLFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E302").
		WithDetail("No " + JSONFileName + " or " + YAMLFileName + " found in " + dir).
		WithSuggestion("Run 'viewstate config init' or pass --config")
}

// LoadFile reads configuration from path. The format follows the file
// extension: .yaml and .yml are YAML, anything else is JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E302").WithDetail("No config file at " + path)
		}
		return nil, errors.New("E301").Wrap(err)
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, yamlFormat bool) (*Config, error) {
	cfg := New()
	// Pointer fields are replaced only when present in the document.
	cfg.Binding.IncludeComputed = nil
	cfg.Binding.MergeSibling.SkipArray = nil

	if yamlFormat {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E301").
				WithDetail("Failed to parse YAML: " + err.Error()).
				WithSuggestion("Check that the file is valid YAML")
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E301").
			WithDetail("Failed to parse JSON: " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format its extension
// selects.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("E301").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E301").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	b := &c.Binding

	if b.Strategy == "" {
		b.Strategy = d.Binding.Strategy
	}
	if b.IncludeComputed == nil {
		b.IncludeComputed = d.Binding.IncludeComputed
	}
	if b.MaxPatchKeys == 0 {
		b.MaxPatchKeys = d.Binding.MaxPatchKeys
	}
	if b.MaxPayloadBytes == 0 {
		b.MaxPayloadBytes = d.Binding.MaxPayloadBytes
	}

	// Merge guards
	if b.MergeSibling.MaxInflationRatio == 0 {
		b.MergeSibling.MaxInflationRatio = d.Binding.MergeSibling.MaxInflationRatio
	}
	if b.MergeSibling.MaxParentBytes == 0 {
		b.MergeSibling.MaxParentBytes = d.Binding.MergeSibling.MaxParentBytes
	}
	if b.MergeSibling.SkipArray == nil {
		b.MergeSibling.SkipArray = d.Binding.MergeSibling.SkipArray
	}

	// Budgets
	if b.ComputedCompare.Mode == "" {
		b.ComputedCompare.Mode = d.Binding.ComputedCompare.Mode
	}
	if b.ComputedCompare.MaxDepth == 0 {
		b.ComputedCompare.MaxDepth = d.Binding.ComputedCompare.MaxDepth
	}
	if b.ComputedCompare.MaxKeys == 0 {
		b.ComputedCompare.MaxKeys = d.Binding.ComputedCompare.MaxKeys
	}
	if b.Prelink.MaxDepth == 0 {
		b.Prelink.MaxDepth = d.Binding.Prelink.MaxDepth
	}
	if b.Prelink.MaxKeys == 0 {
		b.Prelink.MaxKeys = d.Binding.Prelink.MaxKeys
	}
	if b.ElevateTopKeyThreshold == 0 {
		b.ElevateTopKeyThreshold = d.Binding.ElevateTopKeyThreshold
	}
	if b.ToPlain.MaxDepth == 0 {
		b.ToPlain.MaxDepth = d.Binding.ToPlain.MaxDepth
	}
	if b.ToPlain.MaxKeys == 0 {
		b.ToPlain.MaxKeys = d.Binding.ToPlain.MaxKeys
	}

	// Debug
	if b.Debug.When == "" {
		b.Debug.When = d.Binding.Debug.When
	}
	if b.Debug.SampleRate == 0 {
		b.Debug.SampleRate = d.Binding.Debug.SampleRate
	}

	// Devtools
	if c.Devtools.Host == "" {
		c.Devtools.Host = DefaultDevHost
	}
	if c.Devtools.Port == 0 {
		c.Devtools.Port = DefaultDevPort
	}
	if c.Devtools.EventBuffer == 0 {
		c.Devtools.EventBuffer = d.Devtools.EventBuffer
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Normalize fills defaults into a Config assembled in code and validates
// it.
func (c *Config) Normalize() error {
	c.applyDefaults()
	return c.Validate()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	b := c.Binding
	switch binding.Strategy(b.Strategy) {
	case binding.StrategyDiff, binding.StrategyPatch:
	default:
		return invalid("binding.strategy must be \"diff\" or \"patch\", got %q", b.Strategy)
	}
	switch binding.CompareMode(b.ComputedCompare.Mode) {
	case binding.CompareReference, binding.CompareShallow, binding.CompareDeep:
	default:
		return invalid("binding.computedCompare.mode must be reference, shallow or deep, got %q", b.ComputedCompare.Mode)
	}
	switch binding.DebugWhen(b.Debug.When) {
	case binding.DebugAlways, binding.DebugFallback:
	default:
		return invalid("binding.debug.when must be \"always\" or \"fallback\", got %q", b.Debug.When)
	}

	for name, v := range map[string]int{
		"binding.maxPatchKeys":                b.MaxPatchKeys,
		"binding.maxPayloadBytes":             b.MaxPayloadBytes,
		"binding.mergeSibling.threshold":      b.MergeSibling.Threshold,
		"binding.mergeSibling.maxParentBytes": b.MergeSibling.MaxParentBytes,
		"binding.elevateTopKeyThreshold":      b.ElevateTopKeyThreshold,
	} {
		if v < 0 {
			return invalid("%s must not be negative", name)
		}
	}
	if b.MergeSibling.Threshold == 1 {
		return invalid("binding.mergeSibling.threshold must be 0 (off) or at least 2")
	}
	if b.MergeSibling.MaxInflationRatio < 0 {
		return invalid("binding.mergeSibling.maxInflationRatio must not be negative")
	}
	if b.Debug.SampleRate < 0 || b.Debug.SampleRate > 1 {
		return invalid("binding.debug.sampleRate must be between 0 and 1")
	}
	if c.Devtools.Port < 0 || c.Devtools.Port > 65535 {
		return invalid("devtools.port must be between 0 and 65535")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New("E301").WithDetail(fmt.Sprintf(format, args...))
}

// BindingOptions converts the file form into binding options. Runtime-only
// fields (logger, metrics, tracer, debug hook) are left for the caller.
func (c *Config) BindingOptions() binding.Options {
	b := c.Binding
	o := binding.DefaultOptions()

	o.Strategy = binding.Strategy(b.Strategy)
	o.Pick = append([]string(nil), b.Pick...)
	o.Omit = append([]string(nil), b.Omit...)
	if b.IncludeComputed != nil {
		o.IncludeComputed = *b.IncludeComputed
	}
	o.MaxPatchKeys = b.MaxPatchKeys
	o.MaxPayloadBytes = b.MaxPayloadBytes

	o.MergeSiblingThreshold = b.MergeSibling.Threshold
	o.MergeSiblingMaxInflationRatio = b.MergeSibling.MaxInflationRatio
	o.MergeSiblingMaxParentBytes = b.MergeSibling.MaxParentBytes
	if b.MergeSibling.SkipArray != nil {
		o.MergeSiblingSkipArray = *b.MergeSibling.SkipArray
	}

	o.ComputedCompare = binding.CompareMode(b.ComputedCompare.Mode)
	o.ComputedCompareMaxDepth = b.ComputedCompare.MaxDepth
	o.ComputedCompareMaxKeys = b.ComputedCompare.MaxKeys
	o.PrelinkMaxDepth = b.Prelink.MaxDepth
	o.PrelinkMaxKeys = b.Prelink.MaxKeys
	o.ElevateTopKeyThreshold = b.ElevateTopKeyThreshold
	o.ToPlainMaxDepth = b.ToPlain.MaxDepth
	o.ToPlainMaxKeys = b.ToPlain.MaxKeys

	o.DebugWhen = binding.DebugWhen(b.Debug.When)
	o.DebugSampleRate = b.Debug.SampleRate
	return o
}

// DevAddress returns the address string for the devtools server.
func (c *Config) DevAddress() string {
	return c.Devtools.Host + ":" + strconv.Itoa(c.Devtools.Port)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{JSONFileName, YAMLFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E302").
				WithDetail("No config file found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadOrDefault loads the config found from dir upwards, or returns the
// defaults when there is none.
func LoadOrDefault(dir string) (*Config, error) {
	root, err := FindProjectRoot(dir)
	if err != nil {
		return New(), nil
	}
	return Load(root)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
