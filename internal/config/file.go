package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danielloader/imgresize/internal/types"
)

// File is the declarative TOML configuration: origins, derivatives,
// path-TTL rules, tiers, bypass threshold, detection thresholds, and the
// cache-tag prefix. A struct tree loaded via BurntSushi/toml, with
// "synthesized" fields (compiled regexps, parsed durations) filled in by
// a post-parse pass.
type File struct {
	Origins     []OriginFile     `toml:"origins"`
	Derivatives []DerivativeFile `toml:"derivatives"`

	PathPatterns []PathPatternFile `toml:"path_patterns"`
	Tiers        []TierFile        `toml:"tiers"`

	BypassThresholdRaw int `toml:"bypass_threshold"`
	MaxTTLSeconds      int `toml:"max_ttl_seconds"`

	CacheTagPrefix string `toml:"cache_tag_prefix"`

	Detection DetectionFile `toml:"detection"`
	Retry     RetryFile     `toml:"retry"`
	Breaker   BreakerFile   `toml:"breaker"`

	CacheBusterParams []string `toml:"cache_buster_params"`

	SecurityLevel string `toml:"security_level"` // "strict" | "permissive"

	// Synthesized: compiled from PathPatterns after parse.
	compiledPatterns []compiledPathPattern
}

type OriginFile struct {
	ID             string            `toml:"id"`
	DomainPattern  string            `toml:"domain_pattern"`
	Enabled        bool              `toml:"enabled"`
	AuthKind       string            `toml:"auth_kind"`
	SecretRef      string            `toml:"secret_ref"`
	Headers        map[string]string `toml:"headers"`
	TokenParam     string            `toml:"token_param"`
	ExpiresWindowS int               `toml:"expires_window_s"`
	Region         string            `toml:"region"`
	Service        string            `toml:"service"`
	AccessKeyRef   string            `toml:"access_key_ref"`
	SecretKeyRef   string            `toml:"secret_key_ref"`
	PathPrefix     string            `toml:"path_prefix"`
}

type DerivativeFile struct {
	Name          string `toml:"name"`
	PathPattern   string `toml:"path_pattern"` // longest-match wins
	Width         int    `toml:"width"`
	Height        int    `toml:"height"`
	Fit           string `toml:"fit"`
	Quality       int    `toml:"quality"`
	Format        string `toml:"format"`
}

type PathPatternFile struct {
	Regex          string        `toml:"regex"`
	TTLByStatus2xx int           `toml:"ttl_2xx"`
	TTLByStatus4xx int           `toml:"ttl_4xx"`
	TTLByStatus5xx int           `toml:"ttl_5xx"`
}

type compiledPathPattern struct {
	re   *regexp.Regexp
	file PathPatternFile
}

type TierFile struct {
	Name       string  `toml:"name"`
	Multiplier float64 `toml:"multiplier"`
}

type DetectionFile struct {
	LRUTTLSeconds   int `toml:"lru_ttl_seconds"`
	LRUMaxSize      int `toml:"lru_max_size"`
	LowClassMax     int `toml:"low_class_max"`
	HighClassMin    int `toml:"high_class_min"`
	HighCapWidth    int `toml:"high_cap_width"`
	MidCapWidth     int `toml:"mid_cap_width"`
	LowCapWidth     int `toml:"low_cap_width"`
}

type RetryFile struct {
	MaxAttempts    int `toml:"max_attempts"`
	InitialDelayMs int `toml:"initial_delay_ms"`
	MaxDelayMs     int `toml:"max_delay_ms"`
}

type BreakerFile struct {
	FailureThreshold  int `toml:"failure_threshold"`
	ResetTimeoutMs    int `toml:"reset_timeout_ms"`
	SuccessThreshold  int `toml:"success_threshold"`
}

// Config is the merged, immutable snapshot consumed by the core.
type Config struct {
	Env  Env
	File File
}

// LoadFile parses a TOML file at path and fills in synthesized fields. A
// missing path is not an error: callers get DefaultFile() instead, and a
// zero-origin config is a legitimate (if useless) snapshot for tests.
func LoadFile(path string) (File, error) {
	if path == "" {
		return DefaultFile(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return DefaultFile(), nil
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	f.Synthesize()
	return f, nil
}

// DefaultFile returns the default tier table and thresholds, with no
// origins or derivatives declared.
func DefaultFile() File {
	f := File{
		BypassThresholdRaw: 70,
		MaxTTLSeconds:      30 * 24 * 3600,
		CacheTagPrefix:     "img-",
		SecurityLevel:      "strict",
		CacheBusterParams:  []string{"_", "cacheBuster", "v", "t"},
		Tiers: []TierFile{
			{Name: "frequent", Multiplier: 2.0},
			{Name: "images", Multiplier: 1.0},
			{Name: "small", Multiplier: 1.5},
			{Name: "large", Multiplier: 0.7},
			{Name: "default", Multiplier: 1.0},
		},
		Detection: DetectionFile{
			LRUTTLSeconds: 600,
			LRUMaxSize:    1000,
			LowClassMax:   30,
			HighClassMin:  70,
			HighCapWidth:  2500,
			MidCapWidth:   1800,
			LowCapWidth:   1200,
		},
		Retry: RetryFile{
			MaxAttempts:    4,
			InitialDelayMs: 100,
			MaxDelayMs:     2000,
		},
		Breaker: BreakerFile{
			FailureThreshold: 5,
			ResetTimeoutMs:   30000,
			SuccessThreshold: 2,
		},
	}
	f.Synthesize()
	return f
}

// SynthesizeForTest re-synthesizes f's compiled fields and returns it,
// for tests that mutate PathPatterns directly (rather than through
// LoadFile) and need the compiled-pattern cache rebuilt.
func SynthesizeForTest(f File) File {
	f.Synthesize()
	return f
}

// Synthesize (re)compiles derived fields from the declarative PathPatterns
// list. Called once after parsing a TOML file; also safe to call again
// after mutating PathPatterns directly (e.g. a hot-reloaded snapshot).
func (f *File) Synthesize() {
	f.compiledPatterns = f.compiledPatterns[:0]
	for _, p := range f.PathPatterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			continue // invalid patterns are skipped, not fatal (read-mostly config)
		}
		f.compiledPatterns = append(f.compiledPatterns, compiledPathPattern{re: re, file: p})
	}
}

// BypassThreshold is the score at or above which a request bypasses the
// cache entirely. Defaults to 70 if unset/invalid.
func (f File) BypassThreshold() int {
	if f.BypassThresholdRaw <= 0 {
		return 70
	}
	return f.BypassThresholdRaw
}

// MaxTTL is the policy ceiling every computed TTL is clamped against,
// including an explicit option.ttl. Defaults to 30 days if unset/invalid.
func (f File) MaxTTL() int {
	if f.MaxTTLSeconds <= 0 {
		return 30 * 24 * 3600
	}
	return f.MaxTTLSeconds
}

// MatchPathPattern returns the first path-TTL rule whose regex matches
// path, in declared order: first match wins.
func (f File) MatchPathPattern(path string) (PathPatternFile, bool) {
	for _, cp := range f.compiledPatterns {
		if cp.re.MatchString(path) {
			return cp.file, true
		}
	}
	return PathPatternFile{}, false
}

// Durations converts RetryFile into time.Duration-bearing values for the
// resilience package.
func (r RetryFile) Durations() (initial, max time.Duration, attempts int) {
	initial = time.Duration(r.InitialDelayMs) * time.Millisecond
	max = time.Duration(r.MaxDelayMs) * time.Millisecond
	attempts = r.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 2 * time.Second
	}
	return
}

// ToOrigin converts an OriginFile into the runtime types.Origin.
func (o OriginFile) ToOrigin() types.Origin {
	origin := types.Origin{
		ID:            o.ID,
		DomainPattern: o.DomainPattern,
		Enabled:       o.Enabled,
		AuthKind:      types.AuthKind(o.AuthKind),
		AuthParams: types.AuthParams{
			SecretRef:      o.SecretRef,
			Headers:        o.Headers,
			TokenParam:     o.TokenParam,
			ExpiresWindowS: o.ExpiresWindowS,
			Region:         o.Region,
			Service:        o.Service,
			AccessKeyRef:   o.AccessKeyRef,
			SecretKeyRef:   o.SecretKeyRef,
		},
	}
	if o.PathPrefix != "" {
		prefix := o.PathPrefix
		origin.PathTransform = func(path string) string { return prefix + path }
	}
	return origin
}
