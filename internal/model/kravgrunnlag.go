package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// KravgrunnlagStatus is the settlement system's view of a claim basis.
type KravgrunnlagStatus string

const (
	KravgrunnlagStatusAnnullert         KravgrunnlagStatus = "Annullert"
	KravgrunnlagStatusAnnullertOmgjort  KravgrunnlagStatus = "AnnullertOmgjort"
	KravgrunnlagStatusAvsluttet         KravgrunnlagStatus = "Avsluttet"
	KravgrunnlagStatusFerdigbehandlet   KravgrunnlagStatus = "Ferdigbehandlet"
	KravgrunnlagStatusEndret            KravgrunnlagStatus = "Endret"
	KravgrunnlagStatusFeil              KravgrunnlagStatus = "Feil"
	KravgrunnlagStatusManuell           KravgrunnlagStatus = "Manuell"
	KravgrunnlagStatusNytt              KravgrunnlagStatus = "Nytt"
	KravgrunnlagStatusSperret           KravgrunnlagStatus = "Sperret"
)

// KravgrunnlagStatusFraKode maps the settlement system's wire codes to statuses.
func KravgrunnlagStatusFraKode(kode string) (KravgrunnlagStatus, error) {
	switch kode {
	case "ANNU":
		return KravgrunnlagStatusAnnullert, nil
	case "ANOM":
		return KravgrunnlagStatusAnnullertOmgjort, nil
	case "AVSL":
		return KravgrunnlagStatusAvsluttet, nil
	case "BEHA":
		return KravgrunnlagStatusFerdigbehandlet, nil
	case "ENDR":
		return KravgrunnlagStatusEndret, nil
	case "FEIL":
		return KravgrunnlagStatusFeil, nil
	case "MANU":
		return KravgrunnlagStatusManuell, nil
	case "NY":
		return KravgrunnlagStatusNytt, nil
	case "SPER":
		return KravgrunnlagStatusSperret, nil
	}
	return "", fmt.Errorf("unknown kravgrunnlag status code %q", kode)
}

// Ytelse is the benefit-class breakdown for one grunnlagsperiode: what was
// paid out, what should have been paid, and the recoverable difference.
// Amounts are whole kroner; SkatteProsent carries exactly four decimals.
type Ytelse struct {
	BelopTidligereUtbetaling   int64           `json:"belopTidligereUtbetaling"`
	BelopNyUtbetaling          int64           `json:"belopNyUtbetaling"`
	BelopSkalTilbakekreves     int64           `json:"belopSkalTilbakekreves"`
	BelopSkalIkkeTilbakekreves int64           `json:"belopSkalIkkeTilbakekreves"`
	SkatteProsent              decimal.Decimal `json:"skatteProsent"`
}

// Feilutbetaling is the error-class line paired with the Ytelse line per month.
type Feilutbetaling struct {
	BelopTidligereUtbetaling   int64 `json:"belopTidligereUtbetaling"`
	BelopNyUtbetaling          int64 `json:"belopNyUtbetaling"`
	BelopSkalTilbakekreves     int64 `json:"belopSkalTilbakekreves"`
	BelopSkalIkkeTilbakekreves int64 `json:"belopSkalIkkeTilbakekreves"`
}

// Grunnlagsperiode is one calendar month of a kravgrunnlag.
type Grunnlagsperiode struct {
	Periode        Periode         `json:"periode"`
	BetaltSkattForYtelsesgruppen decimal.Decimal `json:"betaltSkattForYtelsesgruppen"`
	Ytelse         Ytelse          `json:"ytelse"`
	Feilutbetaling Feilutbetaling  `json:"feilutbetaling"`
}

// Kravgrunnlag is a parsed claim basis from the settlement system describing,
// per month, an overpayment and its tax implications.
type Kravgrunnlag struct {
	Saksnummer            int64              `json:"saksnummer"`
	EksternKravgrunnlagID string             `json:"eksternKravgrunnlagId"`
	EksternVedtakID       string             `json:"eksternVedtakId"`
	EksternKontrollfelt   string             `json:"eksternKontrollfelt"`
	Status                KravgrunnlagStatus `json:"status"`
	Behandler             string             `json:"behandler"`
	UtbetalingID          string             `json:"utbetalingId"`
	EksternTidspunkt      time.Time          `json:"eksternTidspunkt"`
	Grunnlagsperioder     []Grunnlagsperiode `json:"grunnlagsperioder"`
}

// Validate checks the kravgrunnlag invariants: a non-empty ordered list of
// one-month perioder and consistent benefit-class arithmetic.
func (k *Kravgrunnlag) Validate() error {
	if k.EksternKravgrunnlagID == "" {
		return fmt.Errorf("kravgrunnlag: missing ekstern kravgrunnlagId")
	}
	if k.EksternVedtakID == "" {
		return fmt.Errorf("kravgrunnlag: missing ekstern vedtakId")
	}
	if len(k.Grunnlagsperioder) == 0 {
		return fmt.Errorf("kravgrunnlag %s: no grunnlagsperioder", k.EksternKravgrunnlagID)
	}
	for i, gp := range k.Grunnlagsperioder {
		if !gp.Periode.ErMaaned() {
			return fmt.Errorf("kravgrunnlag %s: periode %s is not a calendar month",
				k.EksternKravgrunnlagID, gp.Periode)
		}
		if diff := gp.Ytelse.BelopTidligereUtbetaling - gp.Ytelse.BelopNyUtbetaling; diff != gp.Ytelse.BelopSkalTilbakekreves {
			return fmt.Errorf("kravgrunnlag %s: periode %s: tilbakekreves %d does not match tidligere-ny %d",
				k.EksternKravgrunnlagID, gp.Periode, gp.Ytelse.BelopSkalTilbakekreves, diff)
		}
		if i > 0 && !k.Grunnlagsperioder[i-1].Periode.FraOgMed.Before(gp.Periode.FraOgMed) {
			return fmt.Errorf("kravgrunnlag %s: grunnlagsperioder out of order at %s",
				k.EksternKravgrunnlagID, gp.Periode)
		}
	}
	return nil
}

// Perioder returns the months covered by the kravgrunnlag, in order.
func (k *Kravgrunnlag) Perioder() []Periode {
	out := make([]Periode, len(k.Grunnlagsperioder))
	for i, gp := range k.Grunnlagsperioder {
		out[i] = gp.Periode
	}
	return out
}

// SamletBelopSkalTilbakekreves is the gross overpayment summed over all months.
func (k *Kravgrunnlag) SamletBelopSkalTilbakekreves() int64 {
	var sum int64
	for _, gp := range k.Grunnlagsperioder {
		sum += gp.Ytelse.BelopSkalTilbakekreves
	}
	return sum
}

// RaattKravgrunnlag is the verbatim intake payload. It is retained forever,
// byte for byte, whether or not it parses.
type RaattKravgrunnlag struct {
	ID      int64     `json:"id"`
	Melding string    `json:"melding"`
	Mottatt time.Time `json:"mottatt"`
}
