package discovery

import (
	"regexp"
	"strings"

	"github.com/IshaanNene/ForumHarvest/internal/config"
)

// Tier weights.
const (
	primaryTitleWeight = 2.0
	primaryBodyWeight  = 1.0
	assignmentWeight   = 3.0
	secondaryWeight    = 0.5
	technicalWeight    = 0.3
)

// Scorer assigns a keyword relevance score to topics.
type Scorer struct {
	primary      []*regexp.Regexp
	assignment   []*regexp.Regexp
	secondary    []*regexp.Regexp
	technical    []*regexp.Regexp
	technicalCap float64
	threshold    float64
}

// NewScorer compiles the keyword tiers of cfg.
func NewScorer(cfg config.RelevanceConfig) *Scorer {
	techCap := cfg.TechnicalCap
	if techCap <= 0 {
		techCap = 2.0
	}
	return &Scorer{
		primary:      compileTerms(cfg.Primary),
		assignment:   compileTerms(cfg.Assignment),
		secondary:    compileTerms(cfg.Secondary),
		technical:    compileTerms(cfg.Technical),
		technicalCap: techCap,
		threshold:    cfg.Threshold,
	}
}

// compileTerms builds case-insensitive matchers bounded by non-alphanumerics,
// so "ga5" matches "GA5 question" but not "ga50".
func compileTerms(terms []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	seen := make(map[string]struct{})
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, regexp.MustCompile(`(?i)(?:^|[^\pL\pN])`+regexp.QuoteMeta(term)+`(?:$|[^\pL\pN])`))
	}
	return out
}

// Score rates a topic by its title and body text. Each term counts at most
// once; a primary term found in the title is not counted again for the body.
func (s *Scorer) Score(title, body string) float64 {
	all := title + "\n" + body
	score := 0.0

	for _, re := range s.primary {
		switch {
		case re.MatchString(title):
			score += primaryTitleWeight
		case re.MatchString(body):
			score += primaryBodyWeight
		}
	}
	for _, re := range s.assignment {
		if re.MatchString(all) {
			score += assignmentWeight
		}
	}
	for _, re := range s.secondary {
		if re.MatchString(all) {
			score += secondaryWeight
		}
	}

	tech := 0.0
	for _, re := range s.technical {
		if re.MatchString(all) {
			tech += technicalWeight
		}
	}
	return score + min(tech, s.technicalCap)
}

// Keep reports whether score meets the threshold.
func (s *Scorer) Keep(score float64) bool {
	return score >= s.threshold
}
