package knowledge

import (
	"math"
	"testing"
)

const testSeedYAML = `
categories:
  computer:
    causes: [disk_failure, overheating, driver_issue]
  phone:
    causes: [battery_wear, port_damage]

patterns:
  - category: computer
    symptoms: [clicking_noise, slow_boot]
    causes:
      disk_failure: 0.8
      overheating: 0.2
    confidence: 0.9

questions:
  - id: q_noise
    category: computer
    text: "Do you hear a repetitive clicking noise?"
    affected_causes: [disk_failure]
    yes_updates:
      disk_failure: 2.5
    no_updates:
      disk_failure: 0.4
    information_gain_estimate: 0.8
    cost_level: safe
    facts: [noise_checked]
`

func TestParseSeedExpandsPatterns(t *testing.T) {
	seed, err := ParseSeed([]byte(testSeedYAML))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}

	if got := len(seed.Causes["computer"]); got != 3 {
		t.Errorf("computer causes: %d, want 3", got)
	}
	if got := len(seed.Patterns); got != 2 {
		t.Fatalf("expanded patterns: %d, want 2 (one per cause)", got)
	}

	byCause := make(map[Cause]Pattern)
	for _, p := range seed.Patterns {
		byCause[p.Cause] = p
		if !p.Approved || p.Origin != OriginSeed {
			t.Errorf("pattern %s: approved=%v origin=%s", p.ID, p.Approved, p.Origin)
		}
	}
	if got := byCause["disk_failure"].Confidence; math.Abs(got-0.72) > 1e-9 {
		t.Errorf("disk_failure confidence: %v, want 0.9*0.8", got)
	}
	if got := byCause["overheating"].Confidence; math.Abs(got-0.18) > 1e-9 {
		t.Errorf("overheating confidence: %v, want 0.9*0.2", got)
	}

	if len(seed.Questions) != 1 {
		t.Fatalf("questions: %d, want 1", len(seed.Questions))
	}
	q := seed.Questions[0]
	if q.YesUpdates["disk_failure"] != 2.5 || q.NoUpdates["disk_failure"] != 0.4 {
		t.Errorf("question updates: yes=%v no=%v", q.YesUpdates, q.NoUpdates)
	}
	if q.CostLevel != CostSafe || q.Origin != OriginSeed {
		t.Errorf("question metadata: cost=%s origin=%s", q.CostLevel, q.Origin)
	}
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"duplicate cause", `
categories:
  pc:
    causes: [a, a]`},
		{"pattern unknown category", `
categories:
  pc:
    causes: [a]
patterns:
  - category: ghost
    symptoms: [s]
    causes: {a: 1.0}
    confidence: 0.5`},
		{"pattern unknown cause", `
categories:
  pc:
    causes: [a]
patterns:
  - category: pc
    symptoms: [s]
    causes: {b: 1.0}
    confidence: 0.5`},
		{"pattern without symptoms", `
categories:
  pc:
    causes: [a]
patterns:
  - category: pc
    symptoms: []
    causes: {a: 1.0}
    confidence: 0.5`},
		{"confidence out of range", `
categories:
  pc:
    causes: [a]
patterns:
  - category: pc
    symptoms: [s]
    causes: {a: 1.0}
    confidence: 1.5`},
		{"question without id", `
categories:
  pc:
    causes: [a]
questions:
  - category: pc
    text: "?"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(tc.yaml)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestSymptomKeyCanonical(t *testing.T) {
	a := SymptomKey([]Symptom{"slow_boot", "clicking_noise"})
	b := SymptomKey([]Symptom{"clicking_noise", "slow_boot", "clicking_noise"})
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != "clicking_noise_slow_boot" {
		t.Errorf("key: %q", a)
	}
}

func TestDerivedConfidence(t *testing.T) {
	// Perfect success rate with thin support stays below a 0.65 bar.
	if got := DerivedConfidence(3, 1.0, 5); math.Abs(got-0.4512) > 0.001 {
		t.Errorf("w(3, 1.0): %v", got)
	}
	if got := DerivedConfidence(10, 0.9, 5); math.Abs(got-0.7782) > 0.001 {
		t.Errorf("w(10, 0.9): %v", got)
	}
	if got := DerivedConfidence(0, 1.0, 5); got != 0 {
		t.Errorf("w(0, 1.0): %v, want 0", got)
	}
}

func TestPatternMatches(t *testing.T) {
	p := Pattern{Symptoms: []Symptom{"a", "b"}}
	if !p.Matches(map[Symptom]bool{"a": true, "b": true, "c": true}) {
		t.Error("superset should match")
	}
	if p.Matches(map[Symptom]bool{"a": true}) {
		t.Error("partial set should not match")
	}
	if (Pattern{}).Matches(map[Symptom]bool{"a": true}) {
		t.Error("empty pattern should never match")
	}
}

func TestQuestionUpdates(t *testing.T) {
	q := Question{
		YesUpdates: map[Cause]float64{"a": 2.0},
		NoUpdates:  map[Cause]float64{"a": 0.5},
	}
	if q.Updates(AnswerYes)["a"] != 2.0 || q.Updates(AnswerNo)["a"] != 0.5 {
		t.Error("yes/no updates not returned")
	}
	if q.Updates(AnswerUncertain) != nil {
		t.Error("uncertain answer must return nil (neutral)")
	}
}

func TestCheaperThan(t *testing.T) {
	safe := Question{CostLevel: CostSafe}
	unset := Question{}
	tools := Question{CostLevel: CostRequiresTools}
	risky := Question{CostLevel: CostRisky}

	if !safe.CheaperThan(tools) || !tools.CheaperThan(risky) {
		t.Error("cost ordering broken")
	}
	if unset.CheaperThan(safe) || safe.CheaperThan(unset) {
		t.Error("unset cost should rank as safe")
	}
}
