package orchestrator

// Quality gate defaults.
const (
	DefaultMinResults  = 3
	DefaultMinTopScore = 0.02
)

// QualityConfig parameterizes the low-result gate.
type QualityConfig struct {
	// MinResults is the candidate count below which quality is suspect.
	MinResults int
	// MinTopScore is the fused top score below which a thin result set
	// counts as low quality.
	MinTopScore float64
}

func (c QualityConfig) fill() QualityConfig {
	if c.MinResults <= 0 {
		c.MinResults = DefaultMinResults
	}
	if c.MinTopScore <= 0 {
		c.MinTopScore = DefaultMinTopScore
	}
	return c
}

// assess classifies a fused candidate set. Zero candidates is always
// zeroResults. A set is lowResults only when it is BOTH thin and weak:
// few strong hits are a fine answer for a narrow query.
func (c QualityConfig) assess(count int, topScore float64) (zeroResults, lowResults bool) {
	if count == 0 {
		return true, false
	}
	if count < c.MinResults && topScore < c.MinTopScore {
		return false, true
	}
	return false, false
}
