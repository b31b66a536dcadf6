package kravgrunnlag

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groblegark/sakd/internal/model"
)

// jsonMelding is the envelope of the structured JSON feed. Exactly one of the
// two keys must be set.
type jsonMelding struct {
	DetaljertKravgrunnlag     *jsonKravgrunnlag   `json:"detaljertKravgrunnlag"`
	EndringKravOgVedtakstatus *jsonStatusendring  `json:"endringKravOgVedtakstatus"`
}

type jsonKravgrunnlag struct {
	KravgrunnlagID string        `json:"kravgrunnlagId"`
	VedtakID       string        `json:"vedtakId"`
	KodeStatusKrav string        `json:"kodeStatusKrav"`
	FagsystemID    string        `json:"fagsystemId"`
	Kontrollfelt   string        `json:"kontrollfelt"`
	SaksbehID      string        `json:"saksbehId"`
	UtbetalingID   string        `json:"utbetalingId"`
	Perioder       []jsonPeriode `json:"tilbakekrevingsperioder"`
}

type jsonPeriode struct {
	Periode struct {
		FraOgMed string `json:"fraOgMed"`
		TilOgMed string `json:"tilOgMed"`
	} `json:"periode"`
	BelopSkattMnd decimal.Decimal `json:"belopSkattMnd"`
	Ytelse        jsonYtelse      `json:"ytelse"`
	Feilutbetaling jsonFeilutbetaling `json:"feilutbetaling"`
}

type jsonYtelse struct {
	BelopTidligereUtbetaling   int64           `json:"belopTidligereUtbetaling"`
	BelopNyUtbetaling          int64           `json:"belopNyUtbetaling"`
	BelopSkalTilbakekreves     int64           `json:"belopSkalTilbakekreves"`
	BelopSkalIkkeTilbakekreves int64           `json:"belopSkalIkkeTilbakekreves"`
	SkatteProsent              decimal.Decimal `json:"skatteProsent"`
}

type jsonFeilutbetaling struct {
	BelopTidligereUtbetaling   int64 `json:"belopTidligereUtbetaling"`
	BelopNyUtbetaling          int64 `json:"belopNyUtbetaling"`
	BelopSkalTilbakekreves     int64 `json:"belopSkalTilbakekreves"`
	BelopSkalIkkeTilbakekreves int64 `json:"belopSkalIkkeTilbakekreves"`
}

type jsonStatusendring struct {
	VedtakID       string `json:"vedtakId"`
	KodeStatusKrav string `json:"kodeStatusKrav"`
	FagsystemID    string `json:"fagsystemId"`
}

// parseJSON handles the structured feed. The envelope carries exactly one of
// detaljertKravgrunnlag and endringKravOgVedtakstatus.
func parseJSON(raw string) (Melding, error) {
	var m jsonMelding
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, &ParseError{Reason: "malformed json", Err: err}
	}
	switch {
	case m.DetaljertKravgrunnlag != nil && m.EndringKravOgVedtakstatus != nil:
		return nil, &ParseError{Reason: "message carries both detaljertKravgrunnlag and endringKravOgVedtakstatus"}
	case m.DetaljertKravgrunnlag != nil:
		return mapJSONKravgrunnlag(*m.DetaljertKravgrunnlag)
	case m.EndringKravOgVedtakstatus != nil:
		return mapJSONStatusendring(*m.EndringKravOgVedtakstatus)
	default:
		return nil, &ParseError{Reason: "message carries neither detaljertKravgrunnlag nor endringKravOgVedtakstatus"}
	}
}

func mapJSONKravgrunnlag(j jsonKravgrunnlag) (Melding, error) {
	saksnummer, err := parseSaksnummer(j.FagsystemID)
	if err != nil {
		return nil, err
	}
	status, err := model.KravgrunnlagStatusFraKode(j.KodeStatusKrav)
	if err != nil {
		return nil, &ParseError{Reason: "bad kodeStatusKrav", Err: err}
	}
	eksternTidspunkt, err := time.Parse(kontrollfeltLayout, j.Kontrollfelt)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("bad kontrollfelt %q", j.Kontrollfelt), Err: err}
	}

	perioder := make([]model.Grunnlagsperiode, 0, len(j.Perioder))
	for _, p := range j.Perioder {
		fom, err := time.Parse(time.DateOnly, p.Periode.FraOgMed)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("bad periode fraOgMed %q", p.Periode.FraOgMed), Err: err}
		}
		tom, err := time.Parse(time.DateOnly, p.Periode.TilOgMed)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("bad periode tilOgMed %q", p.Periode.TilOgMed), Err: err}
		}
		periode, err := model.NyPeriode(fom, tom)
		if err != nil {
			return nil, &ParseError{Reason: "bad periode", Err: err}
		}
		perioder = append(perioder, model.Grunnlagsperiode{
			Periode:                      periode,
			BetaltSkattForYtelsesgruppen: p.BelopSkattMnd.Round(2),
			Ytelse: model.Ytelse{
				BelopTidligereUtbetaling:   p.Ytelse.BelopTidligereUtbetaling,
				BelopNyUtbetaling:          p.Ytelse.BelopNyUtbetaling,
				BelopSkalTilbakekreves:     p.Ytelse.BelopSkalTilbakekreves,
				BelopSkalIkkeTilbakekreves: p.Ytelse.BelopSkalIkkeTilbakekreves,
				SkatteProsent:              p.Ytelse.SkatteProsent.Round(4),
			},
			Feilutbetaling: model.Feilutbetaling(p.Feilutbetaling),
		})
	}

	k := model.Kravgrunnlag{
		Saksnummer:            saksnummer,
		EksternKravgrunnlagID: j.KravgrunnlagID,
		EksternVedtakID:       j.VedtakID,
		EksternKontrollfelt:   j.Kontrollfelt,
		Status:                status,
		Behandler:             j.SaksbehID,
		UtbetalingID:          j.UtbetalingID,
		EksternTidspunkt:      model.Tidspunkt(eksternTidspunkt),
		Grunnlagsperioder:     perioder,
	}
	if err := k.Validate(); err != nil {
		return nil, &ParseError{Reason: "inconsistent kravgrunnlag", Err: err}
	}
	return Kravgrunnlagmelding{Kravgrunnlag: k}, nil
}

func mapJSONStatusendring(j jsonStatusendring) (Melding, error) {
	saksnummer, err := parseSaksnummer(j.FagsystemID)
	if err != nil {
		return nil, err
	}
	status, err := model.KravgrunnlagStatusFraKode(j.KodeStatusKrav)
	if err != nil {
		return nil, &ParseError{Reason: "bad kodeStatusKrav", Err: err}
	}
	if j.VedtakID == "" {
		return nil, &ParseError{Reason: "statusendring without vedtakId"}
	}
	return Statusendringsmelding{
		Saksnummer:      saksnummer,
		EksternVedtakID: j.VedtakID,
		Status:          status,
	}, nil
}
