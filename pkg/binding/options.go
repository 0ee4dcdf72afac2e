package binding

import (
	"log/slog"
	"math/rand/v2"

	"github.com/vango-dev/viewstate/pkg/reactive"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// Strategy selects the engine that builds payloads.
type Strategy string

const (
	// StrategyDiff serializes the whole state on every flush and diffs it
	// against the ledger.
	StrategyDiff Strategy = "diff"
	// StrategyPatch builds payloads from recorded mutation paths and falls
	// back to diff when that is unsafe or too large.
	StrategyPatch Strategy = "patch"
)

// CompareMode decides whether a dirty computed field actually changed.
type CompareMode string

const (
	// CompareReference compares the computed's raw value by identity.
	CompareReference CompareMode = "reference"
	// CompareShallow compares the first level of the raw value.
	CompareShallow CompareMode = "shallow"
	// CompareDeep compares serialized values structurally, within a budget.
	CompareDeep CompareMode = "deep"
)

// DebugWhen filters debug telemetry.
type DebugWhen string

const (
	DebugAlways   DebugWhen = "always"
	DebugFallback DebugWhen = "fallback"
)

// ComputedField is a derived value sent alongside the state under Name.
type ComputedField struct {
	Name   string
	Source reactive.Source
}

// Options configures a Binding.
type Options struct {
	Strategy Strategy

	// Pick limits the binding to these top-level fields. Omit excludes
	// fields. Computed fields are subject to both.
	Pick []string
	Omit []string

	IncludeComputed bool
	Computed        []ComputedField

	MaxPatchKeys    int
	MaxPayloadBytes int

	// MergeSiblingThreshold merges that many changed children of one
	// parent into a single parent entry. Zero disables merging.
	MergeSiblingThreshold         int
	MergeSiblingMaxInflationRatio float64
	MergeSiblingMaxParentBytes    int
	MergeSiblingSkipArray         bool

	ComputedCompare         CompareMode
	ComputedCompareMaxDepth int
	ComputedCompareMaxKeys  int

	PrelinkMaxDepth int
	PrelinkMaxKeys  int

	// ElevateTopKeyThreshold replaces a top-level field whole once it has
	// that many pending child paths.
	ElevateTopKeyThreshold int

	ToPlainMaxDepth int
	ToPlainMaxKeys  int

	Debug           telemetry.DebugHook
	DebugWhen       DebugWhen
	DebugSampleRate float64

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Rand returns values in [0,1) for debug sampling.
	Rand func() float64
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:                      StrategyPatch,
		IncludeComputed:               true,
		MaxPatchKeys:                  200,
		MaxPayloadBytes:               256 * 1024,
		MergeSiblingMaxInflationRatio: 1.25,
		MergeSiblingMaxParentBytes:    16 * 1024,
		MergeSiblingSkipArray:         true,
		ComputedCompare:               CompareReference,
		ComputedCompareMaxDepth:       32,
		ComputedCompareMaxKeys:        10000,
		PrelinkMaxDepth:               8,
		PrelinkMaxKeys:                2000,
		ElevateTopKeyThreshold:        64,
		ToPlainMaxDepth:               64,
		ToPlainMaxKeys:                100000,
		DebugWhen:                     DebugAlways,
		DebugSampleRate:               1,
	}
}

// Option configures a Binding.
type Option func(*Options)

// WithOptions replaces the whole configuration, for callers that load it
// from a file.
func WithOptions(o Options) Option {
	return func(dst *Options) {
		*dst = o
	}
}

// WithStrategy selects diff or patch.
func WithStrategy(s Strategy) Option {
	return func(o *Options) {
		o.Strategy = s
	}
}

// WithPick limits the binding to the given top-level fields.
func WithPick(keys ...string) Option {
	return func(o *Options) {
		o.Pick = append(o.Pick, keys...)
	}
}

// WithOmit excludes the given top-level fields.
func WithOmit(keys ...string) Option {
	return func(o *Options) {
		o.Omit = append(o.Omit, keys...)
	}
}

// WithComputed sends src under name.
func WithComputed(name string, src reactive.Source) Option {
	return func(o *Options) {
		o.Computed = append(o.Computed, ComputedField{Name: name, Source: src})
	}
}

// WithIncludeComputed toggles sending computed fields.
func WithIncludeComputed(include bool) Option {
	return func(o *Options) {
		o.IncludeComputed = include
	}
}

// WithComputedCompare sets how dirty computed fields are compared. The
// budget applies to CompareDeep.
func WithComputedCompare(mode CompareMode, maxDepth, maxKeys int) Option {
	return func(o *Options) {
		o.ComputedCompare = mode
		o.ComputedCompareMaxDepth = maxDepth
		o.ComputedCompareMaxKeys = maxKeys
	}
}

// WithMaxPatchKeys sets the pending path ceiling.
func WithMaxPatchKeys(n int) Option {
	return func(o *Options) {
		o.MaxPatchKeys = n
	}
}

// WithMaxPayloadBytes sets the patch payload size ceiling.
func WithMaxPayloadBytes(n int) Option {
	return func(o *Options) {
		o.MaxPayloadBytes = n
	}
}

// WithMergeSiblings enables sibling merging at threshold n.
func WithMergeSiblings(n int) Option {
	return func(o *Options) {
		o.MergeSiblingThreshold = n
	}
}

// WithMergeSiblingGuards sets the sibling merge guards.
func WithMergeSiblingGuards(maxInflation float64, maxParentBytes int, skipArray bool) Option {
	return func(o *Options) {
		o.MergeSiblingMaxInflationRatio = maxInflation
		o.MergeSiblingMaxParentBytes = maxParentBytes
		o.MergeSiblingSkipArray = skipArray
	}
}

// WithPrelink bounds the eager parent-link walk.
func WithPrelink(maxDepth, maxKeys int) Option {
	return func(o *Options) {
		o.PrelinkMaxDepth = maxDepth
		o.PrelinkMaxKeys = maxKeys
	}
}

// WithElevateTopKeyThreshold sets the per-field path count that elevates
// a field to a whole replacement.
func WithElevateTopKeyThreshold(n int) Option {
	return func(o *Options) {
		o.ElevateTopKeyThreshold = n
	}
}

// WithToPlainBudget bounds serialization.
func WithToPlainBudget(maxDepth, maxKeys int) Option {
	return func(o *Options) {
		o.ToPlainMaxDepth = maxDepth
		o.ToPlainMaxKeys = maxKeys
	}
}

// WithDebug registers a debug hook with its filter and sample rate.
func WithDebug(hook telemetry.DebugHook, when DebugWhen, sampleRate float64) Option {
	return func(o *Options) {
		o.Debug = hook
		o.DebugWhen = when
		o.DebugSampleRate = sampleRate
	}
}

// WithLogger sets the binding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics records flushes into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithTracer wraps flushes in spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	if o.MergeSiblingMaxInflationRatio <= 0 {
		o.MergeSiblingMaxInflationRatio = d.MergeSiblingMaxInflationRatio
	}
	if o.ComputedCompare == "" {
		o.ComputedCompare = d.ComputedCompare
	}
	if o.ToPlainMaxDepth <= 0 {
		o.ToPlainMaxDepth = d.ToPlainMaxDepth
	}
	if o.ToPlainMaxKeys <= 0 {
		o.ToPlainMaxKeys = d.ToPlainMaxKeys
	}
	if o.DebugWhen == "" {
		o.DebugWhen = d.DebugWhen
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
}
