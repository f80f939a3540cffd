// Package grouping collapses near-duplicate editions of the same work
// into one result group and picks the canonical edition to show.
package grouping

import (
	"fmt"
	"log/slog"
	"sort"
)

// Penalty multipliers applied to the fused score before canonical
// selection. Special editions should not outrank the plain edition on
// score noise alone.
const (
	DefaultRecoverPenalty = 0.90
	DefaultSetPenalty     = 0.85
	DefaultSpecialPenalty = 0.90
)

// Config configures the service.
type Config struct {
	Enabled        bool
	RecoverPenalty float64
	SetPenalty     float64
	SpecialPenalty float64
	// NoiseTokens are edition words stripped from titles before the
	// identity key is built, so "해리포터 리커버" and "해리포터" land in
	// the same group. Defaults to the edition marker terms.
	NoiseTokens []string
	// FillVariants tops up a short page with non-canonical variants.
	FillVariants bool
}

func (c Config) fill() Config {
	if c.NoiseTokens == nil {
		c.NoiseTokens = defaultNoiseTokens()
	}
	if c.RecoverPenalty <= 0 || c.RecoverPenalty > 1 {
		c.RecoverPenalty = DefaultRecoverPenalty
	}
	if c.SetPenalty <= 0 || c.SetPenalty > 1 {
		c.SetPenalty = DefaultSetPenalty
	}
	if c.SpecialPenalty <= 0 || c.SpecialPenalty > 1 {
		c.SpecialPenalty = DefaultSpecialPenalty
	}
	return c
}

// Material is one fused result entering grouping. Rank is its 1-based
// position in the fused ordering.
type Material struct {
	ID           string
	Score        float64
	Rank         int
	Title        string
	Author       string
	EditionLabel string
	Volume       string
}

// Group is one work: the canonical edition plus its variants, variants
// ordered by adjusted score.
type Group struct {
	Canonical Material
	Variants  []Material
}

// Size counts all editions in the group.
func (g Group) Size() int { return 1 + len(g.Variants) }

// Service groups materials.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates the service.
func New(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{cfg: cfg.fill(), logger: logger}
}

// Group collapses the fused list into work groups, ordered by each
// group's canonical adjusted score (ties broken by better fused rank).
// The query is consulted for set intent: a query that asks for a boxed
// set keeps set editions unpenalized.
//
// With grouping disabled every material becomes its own group, so the
// paging path downstream is uniform.
func (s *Service) Group(query string, materials []Material) []Group {
	if !s.cfg.Enabled {
		groups := make([]Group, len(materials))
		for i, m := range materials {
			groups[i] = Group{Canonical: m}
		}
		return groups
	}

	setIntent := hasSetIntent(query)

	type member struct {
		material Material
		adjusted float64
	}
	byKey := make(map[string][]member)
	keyOrder := make([]string, 0, len(materials))

	for _, m := range materials {
		key := s.groupKey(m)
		if _, seen := byKey[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		byKey[key] = append(byKey[key], member{
			material: m,
			adjusted: m.Score * s.penalty(m, setIntent),
		})
	}

	groups := make([]Group, 0, len(keyOrder))
	for _, key := range keyOrder {
		members := byKey[key]
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].adjusted != members[j].adjusted {
				return members[i].adjusted > members[j].adjusted
			}
			return members[i].material.Rank < members[j].material.Rank
		})

		g := Group{Canonical: members[0].material}
		// The canonical carries its adjusted score forward so group
		// ordering and edition selection agree.
		g.Canonical.Score = members[0].adjusted
		for _, v := range members[1:] {
			g.Variants = append(g.Variants, v.material)
		}
		if len(members) > 1 {
			s.logger.Debug("grouped editions",
				slog.String("canonical", g.Canonical.ID),
				slog.Int("variants", len(g.Variants)))
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Canonical.Score != groups[j].Canonical.Score {
			return groups[i].Canonical.Score > groups[j].Canonical.Score
		}
		return groups[i].Canonical.Rank < groups[j].Canonical.Rank
	})
	return groups
}

// Page slices one page of canonicals out of the grouped list and
// re-ranks it 1..N within the page. When FillVariants is on and the
// final page runs short, variants from the page's groups top it up.
func (s *Service) Page(groups []Group, page, size int) []Material {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		return nil
	}

	start := (page - 1) * size
	if start >= len(groups) {
		return nil
	}
	end := start + size
	if end > len(groups) {
		end = len(groups)
	}

	out := make([]Material, 0, size)
	for _, g := range groups[start:end] {
		out = append(out, g.Canonical)
	}

	if s.cfg.FillVariants && len(out) < size && end == len(groups) {
		for _, g := range groups[start:end] {
			for _, v := range g.Variants {
				if len(out) == size {
					break
				}
				out = append(out, v)
			}
		}
	}

	for i := range out {
		out[i].Rank = start + i + 1
	}
	return out
}

func (s *Service) penalty(m Material, setIntent bool) float64 {
	switch detectEdition(m.EditionLabel, m.Title) {
	case EditionRecover:
		return s.cfg.RecoverPenalty
	case EditionSet:
		if setIntent {
			return 1.0
		}
		return s.cfg.SetPenalty
	case EditionSpecial:
		return s.cfg.SpecialPenalty
	default:
		return 1.0
	}
}

// groupKey identifies a work: noise-stripped normalized title, first
// author, volume. Volume keeps series installments apart even when
// titles normalize identically.
func (s *Service) groupKey(m Material) string {
	title := stripNoiseTokens(m.Title, s.cfg.NoiseTokens)
	return fmt.Sprintf("%s|%s|%s", normalizeTitle(title), firstAuthor(m.Author), m.Volume)
}
