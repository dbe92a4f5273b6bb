package testkit

import (
	"fmt"
	"math/rand"

	"escapemap/domain/escape"
)

// PanelConfig configures the synthetic escape panel generator.
type PanelConfig struct {
	ClassCount         int     `json:"class_count"`
	ConditionsPerClass int     `json:"conditions_per_class"`
	SitesPerClass      int     `json:"sites_per_class"`
	BackgroundSites    int     `json:"background_sites"`
	SignalEscape       float64 `json:"signal_escape"`
	BackgroundEscape   float64 `json:"background_escape"`
	NoiseLevel         float64 `json:"noise_level"`
	Seed               int64   `json:"seed"`
}

// DefaultPanelConfig returns a small panel with clear class structure.
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		ClassCount:         3,
		ConditionsPerClass: 4,
		SitesPerClass:      5,
		BackgroundSites:    10,
		SignalEscape:       0.8,
		BackgroundEscape:   0.05,
		NoiseLevel:         0.05,
		Seed:               42,
	}
}

// PanelGenerator builds synthetic escape tables whose conditions cluster by
// epitope class. Conditions of one class share strong escape at the class's
// signature sites and only weak background escape elsewhere, so within-class
// similarity exceeds cross-class similarity by construction. Deterministic
// for a given seed.
type PanelGenerator struct {
	config PanelConfig
	rng    *rand.Rand
}

// NewPanelGenerator creates a generator for the given configuration.
func NewPanelGenerator(config PanelConfig) *PanelGenerator {
	return &PanelGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Observations generates the full panel in condition order.
func (g *PanelGenerator) Observations() []escape.Observation {
	var observations []escape.Observation

	for class := 0; class < g.config.ClassCount; class++ {
		signature := g.ClassSites(class)
		for i := 0; i < g.config.ConditionsPerClass; i++ {
			condition := g.conditionName(class, i)

			// Strong escape at the class's own signature sites
			for _, site := range signature {
				observations = append(observations, escape.Observation{
					Condition: condition,
					Site:      site,
					Metric:    g.noisy(g.config.SignalEscape),
				})
			}

			// Weak background escape at sites every class shares; this keeps
			// cross-class similarity positive but well below within-class
			for b := 0; b < g.config.BackgroundSites; b++ {
				observations = append(observations, escape.Observation{
					Condition: condition,
					Site:      g.backgroundSite(b),
					Metric:    g.noisy(g.config.BackgroundEscape),
				})
			}
		}
	}

	return observations
}

// Table builds the aggregated table for the generated panel.
func (g *PanelGenerator) Table() (*escape.Table, error) {
	return escape.NewTable(g.Observations())
}

// ClassConditions returns the condition names of one class, in order.
func (g *PanelGenerator) ClassConditions(class int) []string {
	names := make([]string, g.config.ConditionsPerClass)
	for i := range names {
		names[i] = g.conditionName(class, i)
	}
	return names
}

// ClassSites returns the signature sites of one class. Numbering starts at
// 400 to look like RBD positions.
func (g *PanelGenerator) ClassSites(class int) []int {
	sites := make([]int, g.config.SitesPerClass)
	for j := range sites {
		sites[j] = 400 + class*g.config.SitesPerClass + j
	}
	return sites
}

// Frequencies returns a synthetic variant-frequency table over every panel
// site, elevated at class 0's signature sites. Escape of class 0 conditions
// is therefore positively rank-correlated with frequency by construction.
func (g *PanelGenerator) Frequencies() map[int]float64 {
	freqs := make(map[int]float64)
	for _, site := range g.ClassSites(0) {
		freqs[site] = 0.3 + g.rng.Float64()*0.4
	}
	for class := 1; class < g.config.ClassCount; class++ {
		for _, site := range g.ClassSites(class) {
			freqs[site] = 0.01 + g.rng.Float64()*0.05
		}
	}
	for b := 0; b < g.config.BackgroundSites; b++ {
		freqs[g.backgroundSite(b)] = 0.01 + g.rng.Float64()*0.05
	}
	return freqs
}

func (g *PanelGenerator) conditionName(class, index int) string {
	return fmt.Sprintf("class%d-mAb-%02d", class+1, index+1)
}

func (g *PanelGenerator) backgroundSite(index int) int {
	return 100 + index
}

// noisy perturbs a base escape value, clamped away from zero so every
// generated profile keeps a positive norm.
func (g *PanelGenerator) noisy(base float64) float64 {
	v := base + g.rng.NormFloat64()*g.config.NoiseLevel
	if v < 0.01 {
		v = 0.01
	}
	return v
}
