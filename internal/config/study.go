package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"escapemap/domain/core"
	"escapemap/domain/escape"
	"escapemap/internal/errors"
)

// StudyConfig enumerates the named analysis groups of one study, plus the
// table-reading settings they share. Everything here is validated at load
// time: a bad method name or exponent must fail before any data is read.
type StudyConfig struct {
	Metric      MetricConfig     `yaml:"metric"`
	Frequencies string           `yaml:"frequencies,omitempty"`
	Epitopes    map[string][]int `yaml:"epitopes,omitempty"`
	Groups      []GroupConfig    `yaml:"groups"`

	// Hash of the raw file, recorded in the run manifest.
	Hash core.ConfigHash `yaml:"-"`
}

// MetricConfig maps observation-table columns and the per-mutation
// aggregation applied before similarity computation.
type MetricConfig struct {
	ConditionColumn string `yaml:"condition_column"`
	SiteColumn      string `yaml:"site_column"`
	ValueColumn     string `yaml:"value_column"`
	MutationColumn  string `yaml:"mutation_column,omitempty"`
	Aggregation     string `yaml:"aggregation"`
}

// GroupConfig describes one named analysis group: which conditions to
// compare, under which dissimilarity method and exponent, and which optional
// side comparisons to run.
type GroupConfig struct {
	Name               string            `yaml:"name"`
	Method             string            `yaml:"method"`
	Exponent           float64           `yaml:"exponent,omitempty"`
	Seed               *int64            `yaml:"seed,omitempty"`
	Conditions         []ConditionConfig `yaml:"conditions"`
	CompareFrequencies bool              `yaml:"compare_frequencies,omitempty"`
	Epitopes           []string          `yaml:"epitopes,omitempty"`
}

// ConditionConfig is one condition with an optional display name. The list
// form fixes the matrix ordering; a mapping would not.
type ConditionConfig struct {
	Name    string `yaml:"name"`
	Display string `yaml:"display,omitempty"`
}

// ConditionNames returns the table-side condition identifiers in order.
func (g GroupConfig) ConditionNames() []string {
	names := make([]string, len(g.Conditions))
	for i, c := range g.Conditions {
		names[i] = c.Name
	}
	return names
}

// DisplayMap returns the rename map for output labeling. Conditions without
// an explicit display name map to themselves.
func (g GroupConfig) DisplayMap() map[string]string {
	m := make(map[string]string, len(g.Conditions))
	for _, c := range g.Conditions {
		if c.Display != "" {
			m[c.Name] = c.Display
		} else {
			m[c.Name] = c.Name
		}
	}
	return m
}

// LoadStudy reads and validates a study configuration file.
func LoadStudy(path string) (*StudyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read study config %s", path)
	}

	var study StudyConfig
	if err := yaml.Unmarshal(raw, &study); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid,
			errors.Wrapf(err, "failed to parse study config %s", path))
	}

	applyStudyDefaults(&study)
	if err := validateStudy(&study); err != nil {
		return nil, err
	}

	study.Hash = core.NewConfigHash(raw)
	return &study, nil
}

// DefaultMetric returns the column mapping assumed when a study does not
// override it.
func DefaultMetric() MetricConfig {
	return MetricConfig{
		ConditionColumn: "condition",
		SiteColumn:      "site",
		ValueColumn:     "escape",
		Aggregation:     string(escape.AggregationSum),
	}
}

func applyStudyDefaults(study *StudyConfig) {
	def := DefaultMetric()
	if study.Metric.ConditionColumn == "" {
		study.Metric.ConditionColumn = def.ConditionColumn
	}
	if study.Metric.SiteColumn == "" {
		study.Metric.SiteColumn = def.SiteColumn
	}
	if study.Metric.ValueColumn == "" {
		study.Metric.ValueColumn = def.ValueColumn
	}
	if study.Metric.Aggregation == "" {
		study.Metric.Aggregation = def.Aggregation
	}
	for i := range study.Groups {
		if study.Groups[i].Exponent == 0 {
			study.Groups[i].Exponent = 1
		}
	}
}

func validateStudy(study *StudyConfig) error {
	if _, err := escape.ParseAggregation(study.Metric.Aggregation); err != nil {
		return err
	}
	if len(study.Groups) == 0 {
		return errors.ConfigInvalid("study defines no analysis groups")
	}

	seenGroups := make(map[string]bool, len(study.Groups))
	for _, group := range study.Groups {
		if group.Name == "" {
			return errors.ConfigInvalid("analysis group without a name")
		}
		if seenGroups[group.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("duplicate analysis group %q", group.Name))
		}
		seenGroups[group.Name] = true

		if err := validateGroup(group, study.Epitopes); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(group GroupConfig, epitopes map[string][]int) error {
	if _, err := escape.ParseDissimilarityMethod(group.Method); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid,
			errors.Wrapf(err, "group %q", group.Name))
	}
	if group.Exponent < 1 {
		return errors.WithCode(errors.CodeConfigInvalid,
			errors.Wrapf(core.ErrExponentOutOfRange,
				"group %q: exponent %g must be >= 1", group.Name, group.Exponent))
	}
	if len(group.Conditions) == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("group %q lists no conditions", group.Name))
	}

	seen := make(map[string]bool, len(group.Conditions))
	for _, c := range group.Conditions {
		if c.Name == "" {
			return errors.ConfigInvalid(fmt.Sprintf("group %q has a condition without a name", group.Name))
		}
		if seen[c.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("group %q lists condition %q twice", group.Name, c.Name))
		}
		seen[c.Name] = true
	}

	for _, name := range group.Epitopes {
		if _, ok := epitopes[name]; !ok {
			return errors.ConfigInvalid(fmt.Sprintf("group %q references undefined epitope set %q", group.Name, name))
		}
	}
	return nil
}
