package model

import (
	"fmt"
	"time"
)

// Periode is an inclusive date range. Grunnlagsperioder are constrained to
// exactly one calendar month; the general form is kept for payment changes,
// which may span several months.
type Periode struct {
	FraOgMed time.Time `json:"fraOgMed"`
	TilOgMed time.Time `json:"tilOgMed"`
}

// NyPeriode builds a periode from inclusive bounds.
func NyPeriode(fraOgMed, tilOgMed time.Time) (Periode, error) {
	if tilOgMed.Before(fraOgMed) {
		return Periode{}, fmt.Errorf("periode: tilOgMed %s before fraOgMed %s",
			tilOgMed.Format(time.DateOnly), fraOgMed.Format(time.DateOnly))
	}
	return Periode{FraOgMed: dateOnly(fraOgMed), TilOgMed: dateOnly(tilOgMed)}, nil
}

// NyMaaned returns the periode covering one whole calendar month.
func NyMaaned(year int, month time.Month) Periode {
	fom := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Periode{FraOgMed: fom, TilOgMed: fom.AddDate(0, 1, -1)}
}

// ErMaaned reports whether the periode covers exactly one calendar month.
func (p Periode) ErMaaned() bool {
	first := time.Date(p.FraOgMed.Year(), p.FraOgMed.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return p.FraOgMed.Equal(first) && p.TilOgMed.Equal(last)
}

// Overlapper reports whether the two periods share at least one day.
func (p Periode) Overlapper(other Periode) bool {
	return !p.FraOgMed.After(other.TilOgMed) && !other.FraOgMed.After(p.TilOgMed)
}

// TilstoeterEtter reports whether other starts the day after p ends, i.e. the
// two periods are consecutive with no gap.
func (p Periode) TilstoeterEtter(other Periode) bool {
	return other.FraOgMed.Equal(p.TilOgMed.AddDate(0, 0, 1))
}

// String renders the periode as "2021-10-01 – 2021-10-31".
func (p Periode) String() string {
	return p.FraOgMed.Format(time.DateOnly) + " – " + p.TilOgMed.Format(time.DateOnly)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
