package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk format of the authored knowledge base. A seed
// pattern may spread its confidence over several causes; it is expanded into
// one single-cause Pattern per entry at load time.
type SeedFile struct {
	Categories map[string]SeedCategory `yaml:"categories"`
	Patterns   []SeedPattern           `yaml:"patterns"`
	Questions  []SeedQuestion          `yaml:"questions"`
}

// SeedCategory declares the immutable cause catalog for one device category.
type SeedCategory struct {
	Causes []string `yaml:"causes"`
}

// SeedPattern is an authored symptom-to-causes association.
type SeedPattern struct {
	Category   string             `yaml:"category"`
	Symptoms   []string           `yaml:"symptoms"`
	Causes     map[string]float64 `yaml:"causes"`
	Confidence float64            `yaml:"confidence"`
}

// SeedQuestion is an authored diagnostic question.
type SeedQuestion struct {
	ID               string             `yaml:"id"`
	Category         string             `yaml:"category"`
	Text             string             `yaml:"text"`
	AffectedCauses   []string           `yaml:"affected_causes"`
	YesUpdates       map[string]float64 `yaml:"yes_updates"`
	NoUpdates        map[string]float64 `yaml:"no_updates"`
	InfoGainEstimate float64            `yaml:"information_gain_estimate"`
	CostLevel        string             `yaml:"cost_level"`
	Facts            []string           `yaml:"facts"`
}

// Seed holds the loaded and expanded authored knowledge.
type Seed struct {
	Causes    map[string][]Cause
	Patterns  []Pattern
	Questions []Question
}

// LoadSeed reads and validates a seed YAML file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML content and expands multi-cause patterns.
func ParseSeed(data []byte) (*Seed, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	seed := &Seed{Causes: make(map[string][]Cause, len(file.Categories))}

	catalog := make(map[string]map[Cause]bool, len(file.Categories))
	for name, cat := range file.Categories {
		known := make(map[Cause]bool, len(cat.Causes))
		for _, c := range cat.Causes {
			cause := Cause(c)
			if known[cause] {
				return nil, fmt.Errorf("category %q: duplicate cause %q", name, c)
			}
			known[cause] = true
			seed.Causes[name] = append(seed.Causes[name], cause)
		}
		catalog[name] = known
	}

	for i, sp := range file.Patterns {
		known, ok := catalog[sp.Category]
		if !ok {
			return nil, fmt.Errorf("pattern %d: unknown category %q", i, sp.Category)
		}
		if len(sp.Symptoms) == 0 {
			return nil, fmt.Errorf("pattern %d: no symptoms", i)
		}
		if sp.Confidence <= 0 || sp.Confidence > 1 {
			return nil, fmt.Errorf("pattern %d: confidence %v out of range", i, sp.Confidence)
		}

		symptoms := make([]Symptom, len(sp.Symptoms))
		for j, s := range sp.Symptoms {
			symptoms[j] = Symptom(s)
		}

		for cause, weight := range sp.Causes {
			if !known[Cause(cause)] {
				return nil, fmt.Errorf("pattern %d: cause %q not in category %q catalog", i, cause, sp.Category)
			}
			seed.Patterns = append(seed.Patterns, Pattern{
				ID:         fmt.Sprintf("seed_%s_%s_%s", sp.Category, SymptomKey(symptoms), cause),
				Category:   sp.Category,
				Symptoms:   symptoms,
				Cause:      Cause(cause),
				Confidence: sp.Confidence * weight,
				Origin:     OriginSeed,
				Approved:   true,
			})
		}
	}

	for i, sq := range file.Questions {
		if sq.ID == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		if _, ok := catalog[sq.Category]; !ok {
			return nil, fmt.Errorf("question %q: unknown category %q", sq.ID, sq.Category)
		}
		seed.Questions = append(seed.Questions, Question{
			ID:               sq.ID,
			Text:             sq.Text,
			Category:         sq.Category,
			AffectedCauses:   toCauses(sq.AffectedCauses),
			YesUpdates:       toUpdates(sq.YesUpdates),
			NoUpdates:        toUpdates(sq.NoUpdates),
			InfoGainEstimate: sq.InfoGainEstimate,
			CostLevel:        CostLevel(sq.CostLevel),
			Facts:            sq.Facts,
			Origin:           OriginSeed,
		})
	}

	return seed, nil
}

func toCauses(names []string) []Cause {
	causes := make([]Cause, len(names))
	for i, n := range names {
		causes[i] = Cause(n)
	}
	return causes
}

func toUpdates(m map[string]float64) map[Cause]float64 {
	if len(m) == 0 {
		return nil
	}
	updates := make(map[Cause]float64, len(m))
	for cause, factor := range m {
		updates[Cause(cause)] = factor
	}
	return updates
}
