package model

import "fmt"

// Vurdering is the case worker's judgement for one month of a kravgrunnlag.
type Vurdering string

const (
	VurderingTilbakekrev             Vurdering = "Tilbakekrev"
	VurderingTilbakekrevMedReduksjon Vurdering = "TilbakekrevMedReduksjon"
	VurderingIkkeTilbakekrev         Vurdering = "IkkeTilbakekrev"
)

// IsValid checks whether the vurdering is a known value.
func (v Vurdering) IsValid() bool {
	switch v {
	case VurderingTilbakekrev, VurderingTilbakekrevMedReduksjon, VurderingIkkeTilbakekrev:
		return true
	}
	return false
}

// Maanedsvurdering ties a vurdering to one grunnlagsperiode month.
type Maanedsvurdering struct {
	Periode   Periode   `json:"periode"`
	Vurdering Vurdering `json:"vurdering"`
}

// Vurderinger is the full set of per-month judgements for a behandling.
type Vurderinger []Maanedsvurdering

// ValiderMotPerioder checks that the vurderinger cover exactly the given
// grunnlagsperioder: every month assessed, no gaps, no overlaps, nothing
// assessed outside the kravgrunnlag.
func (vs Vurderinger) ValiderMotPerioder(perioder []Periode) error {
	if len(vs) != len(perioder) {
		return fmt.Errorf("%d vurderinger for %d grunnlagsperioder", len(vs), len(perioder))
	}
	seen := make(map[Periode]bool, len(vs))
	for _, v := range vs {
		if !v.Vurdering.IsValid() {
			return fmt.Errorf("unknown vurdering %q for %s", v.Vurdering, v.Periode)
		}
		if seen[v.Periode] {
			return fmt.Errorf("periode %s assessed twice", v.Periode)
		}
		seen[v.Periode] = true
	}
	for _, p := range perioder {
		if !seen[p] {
			return fmt.Errorf("periode %s has no vurdering", p)
		}
	}
	return nil
}

// Brevvalg is the derived decision-letter variant.
type Brevvalg string

const (
	// BrevvalgFullTilbakekreving when every month is recovered in full.
	BrevvalgFullTilbakekreving Brevvalg = "FULL_TILBAKEKREVING"
	// BrevvalgIngenTilbakekreving when no month is recovered.
	BrevvalgIngenTilbakekreving Brevvalg = "INGEN_TILBAKEKREVING"
	// BrevvalgDelvisTilbakekreving for any mix, including reductions.
	BrevvalgDelvisTilbakekreving Brevvalg = "DELVIS_TILBAKEKREVING"
)

// UtledBrevvalg derives the letter variant from the distribution of
// judgements across the assessed months.
func (vs Vurderinger) UtledBrevvalg() Brevvalg {
	var krev, ikke int
	for _, v := range vs {
		switch v.Vurdering {
		case VurderingTilbakekrev:
			krev++
		case VurderingIkkeTilbakekrev:
			ikke++
		}
	}
	switch {
	case krev == len(vs):
		return BrevvalgFullTilbakekreving
	case ikke == len(vs):
		return BrevvalgIngenTilbakekreving
	default:
		return BrevvalgDelvisTilbakekreving
	}
}
