package engine

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"structd/internal/device"
)

// Defaults applied when corresponding SizingConfig fields are unset.
const (
	DefaultContextCeiling = 12288
	defaultSmallThreshold = 2048
	defaultScale          = 1.35
	defaultHeadroom       = 700
	defaultMaxThreads     = 8
)

// AccelTier is the coarse acceleration decision.
type AccelTier string

const (
	TierCPU     AccelTier = "cpu"
	TierReduced AccelTier = "reduced"
	TierFull    AccelTier = "full"
)

// OffloadTier is one row of the acceleration table: devices with at least
// MinMemoryMB of memory offload the given number of layers.
type OffloadTier struct {
	MinMemoryMB    int64 `json:"min_memory_mb" yaml:"min_memory_mb" toml:"min_memory_mb"`
	DiscreteLayers int   `json:"discrete_layers" yaml:"discrete_layers" toml:"discrete_layers"`
	UnifiedLayers  int   `json:"unified_layers" yaml:"unified_layers" toml:"unified_layers"`
}

// DefaultOffloadTiers reproduces the reference deployment: below ~7.2 GiB
// offload 20 layers, above it 24 on discrete GPUs and everything on unified
// memory.
func DefaultOffloadTiers() []OffloadTier {
	return []OffloadTier{
		{MinMemoryMB: 0, DiscreteLayers: 20, UnifiedLayers: 20},
		{MinMemoryMB: 7247, DiscreteLayers: 24, UnifiedLayers: 999},
	}
}

// SizingConfig holds the tunables of SizingPolicy. Zero values mean default.
type SizingConfig struct {
	Ceiling        int
	SmallThreshold int
	Scale          float64
	Headroom       int
	MaxThreads     int
	Tiers          []OffloadTier
}

// SizingDecision is derived once per request and never changes for the
// lifetime of the Session built from it.
type SizingDecision struct {
	PromptTokens  int
	ContextLength int
	BatchLength   int
	Threads       int
	GPULayers     int
	Tier          AccelTier
}

// SizingPolicy maps (prompt tokens, device capability) to a SizingDecision.
// It has no side effects.
type SizingPolicy struct {
	cfg    SizingConfig
	numCPU int
}

// NewSizingPolicy validates cfg and applies defaults. The tier table must be
// monotonic: rows sorted by memory, layer counts never decreasing.
func NewSizingPolicy(cfg SizingConfig) (*SizingPolicy, error) {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultContextCeiling
	}
	if cfg.SmallThreshold <= 0 {
		cfg.SmallThreshold = defaultSmallThreshold
	}
	if cfg.Scale <= 0 {
		cfg.Scale = defaultScale
	}
	if cfg.Headroom <= 0 {
		cfg.Headroom = defaultHeadroom
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = defaultMaxThreads
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultOffloadTiers()
	}
	tiers := append([]OffloadTier(nil), cfg.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinMemoryMB < tiers[j].MinMemoryMB })
	for i := 1; i < len(tiers); i++ {
		prev, cur := tiers[i-1], tiers[i]
		if cur.MinMemoryMB == prev.MinMemoryMB {
			return nil, fmt.Errorf("sizing: duplicate tier for %d MB", cur.MinMemoryMB)
		}
		if cur.DiscreteLayers < prev.DiscreteLayers || cur.UnifiedLayers < prev.UnifiedLayers {
			return nil, fmt.Errorf("sizing: tier at %d MB offloads fewer layers than tier at %d MB", cur.MinMemoryMB, prev.MinMemoryMB)
		}
	}
	for _, t := range tiers {
		if t.DiscreteLayers < 0 || t.UnifiedLayers < 0 || t.MinMemoryMB < 0 {
			return nil, fmt.Errorf("sizing: negative value in tier %+v", t)
		}
	}
	cfg.Tiers = tiers
	return &SizingPolicy{cfg: cfg, numCPU: runtime.NumCPU()}, nil
}

// Ceiling returns the hard context-length upper bound.
func (p *SizingPolicy) Ceiling() int { return p.cfg.Ceiling }

// ContextLength computes the context length for a prompt of n tokens.
func (p *SizingPolicy) ContextLength(n int) (int, error) {
	if n <= 0 {
		return 0, ErrEmptyInput("prompt")
	}
	// the epsilon keeps exact products like 1600*1.35 from rounding up
	scaled := int(math.Ceil(float64(n)*p.cfg.Scale - 1e-9))
	need := scaled
	if scaled < p.cfg.SmallThreshold {
		need = max(scaled, n+p.cfg.Headroom)
	}
	if need > p.cfg.Ceiling {
		return 0, ErrInputTooLong(need, p.cfg.Ceiling)
	}
	return need, nil
}

// Accel picks the offload tier and layer count for dev.
func (p *SizingPolicy) Accel(dev device.Capability) (AccelTier, int) {
	if !dev.Accelerated {
		return TierCPU, 0
	}
	idx := -1
	for i, t := range p.cfg.Tiers {
		if dev.MemoryMB >= t.MinMemoryMB {
			idx = i
		}
	}
	if idx < 0 {
		return TierCPU, 0
	}
	row := p.cfg.Tiers[idx]
	layers := row.DiscreteLayers
	if dev.Unified {
		layers = row.UnifiedLayers
	}
	if layers == 0 {
		return TierCPU, 0
	}
	if idx == len(p.cfg.Tiers)-1 {
		return TierFull, layers
	}
	return TierReduced, layers
}

// Threads returns the decode thread count: cores minus two, within [1, MaxThreads].
func (p *SizingPolicy) Threads() int {
	return min(max(1, p.numCPU-2), p.cfg.MaxThreads)
}

// Decide combines ContextLength and Accel into a SizingDecision.
func (p *SizingPolicy) Decide(promptTokens int, dev device.Capability) (SizingDecision, error) {
	n, err := p.ContextLength(promptTokens)
	if err != nil {
		return SizingDecision{}, err
	}
	tier, layers := p.Accel(dev)
	return SizingDecision{
		PromptTokens:  promptTokens,
		ContextLength: n,
		BatchLength:   n,
		Threads:       p.Threads(),
		GPULayers:     layers,
		Tier:          tier,
	}, nil
}
