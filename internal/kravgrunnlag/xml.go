package kravgrunnlag

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groblegark/sakd/internal/model"
)

// kontrollfeltLayout is the settlement system's production timestamp format,
// carried verbatim as the idempotency token and parsed for staleness checks.
const kontrollfeltLayout = "2006-01-02-15.04.05.000000"

// Class codes on the per-period amount lines of the legacy feed.
const (
	klasseTypeYtelse = "YTEL"
	klasseTypeFeil   = "FEIL"
)

// detaljertKravgrunnlagMelding mirrors the legacy XML feed for new claim
// bases.
type detaljertKravgrunnlagMelding struct {
	XMLName xml.Name              `xml:"detaljertKravgrunnlagMelding"`
	Detalj  detaljertKravgrunnlag `xml:"detaljertKravgrunnlag"`
}

type detaljertKravgrunnlag struct {
	KravgrunnlagID string                   `xml:"kravgrunnlagId"`
	VedtakID       string                   `xml:"vedtakId"`
	KodeStatusKrav string                   `xml:"kodeStatusKrav"`
	KodeFagomraade string                   `xml:"kodeFagomraade"`
	FagsystemID    string                   `xml:"fagsystemId"`
	Kontrollfelt   string                   `xml:"kontrollfelt"`
	SaksbehID      string                   `xml:"saksbehId"`
	Referanse      string                   `xml:"referanse"`
	Perioder       []tilbakekrevingsPeriode `xml:"tilbakekrevingsPeriode"`
}

type tilbakekrevingsPeriode struct {
	Periode struct {
		Fom string `xml:"fom"`
		Tom string `xml:"tom"`
	} `xml:"periode"`
	BelopSkattMnd string                  `xml:"belopSkattMnd"`
	Belop         []tilbakekrevingsBelop  `xml:"tilbakekrevingsBelop"`
}

type tilbakekrevingsBelop struct {
	KodeKlasse         string `xml:"kodeKlasse"`
	TypeKlasse         string `xml:"typeKlasse"`
	BelopOpprUtbet     string `xml:"belopOpprUtbet"`
	BelopNy            string `xml:"belopNy"`
	BelopTilbakekreves string `xml:"belopTilbakekreves"`
	BelopUinnkrevd     string `xml:"belopUinnkrevd"`
	SkattProsent       string `xml:"skattProsent"`
}

// endringKravOgVedtakstatus mirrors the legacy XML status-change message.
type endringKravOgVedtakstatus struct {
	XMLName xml.Name           `xml:"endringKravOgVedtakstatus"`
	Status  kravOgVedtakstatus `xml:"kravOgVedtakstatus"`
}

type kravOgVedtakstatus struct {
	VedtakID       string `xml:"vedtakId"`
	KodeStatusKrav string `xml:"kodeStatusKrav"`
	KodeFagomraade string `xml:"kodeFagomraade"`
	FagsystemID    string `xml:"fagsystemId"`
	VedtakGjelderID string `xml:"vedtakGjelderId"`
	TypeGjelderID  string `xml:"typeGjelderId"`
}

// parseXML sniffs the root element of a legacy message and dispatches to the
// matching schema.
func parseXML(raw string) (Melding, error) {
	root, err := rootElement(raw)
	if err != nil {
		return nil, &ParseError{Reason: "malformed xml", Err: err}
	}
	switch root {
	case "detaljertKravgrunnlagMelding":
		return parseDetaljertKravgrunnlag(raw)
	case "endringKravOgVedtakstatus":
		return parseStatusendring(raw)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown xml root element %q", root)}
	}
}

func rootElement(raw string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader([]byte(raw)))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("no root element")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func parseDetaljertKravgrunnlag(raw string) (Melding, error) {
	var melding detaljertKravgrunnlagMelding
	if err := xml.Unmarshal([]byte(raw), &melding); err != nil {
		return nil, &ParseError{Reason: "malformed detaljertKravgrunnlagMelding", Err: err}
	}
	d := melding.Detalj

	saksnummer, err := parseSaksnummer(d.FagsystemID)
	if err != nil {
		return nil, err
	}
	status, err := model.KravgrunnlagStatusFraKode(d.KodeStatusKrav)
	if err != nil {
		return nil, &ParseError{Reason: "bad kodeStatusKrav", Err: err}
	}
	eksternTidspunkt, err := time.Parse(kontrollfeltLayout, d.Kontrollfelt)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("bad kontrollfelt %q", d.Kontrollfelt), Err: err}
	}

	perioder := make([]model.Grunnlagsperiode, 0, len(d.Perioder))
	for _, p := range d.Perioder {
		gp, err := mapGrunnlagsperiode(p)
		if err != nil {
			return nil, err
		}
		perioder = append(perioder, gp)
	}

	k := model.Kravgrunnlag{
		Saksnummer:            saksnummer,
		EksternKravgrunnlagID: d.KravgrunnlagID,
		EksternVedtakID:       d.VedtakID,
		EksternKontrollfelt:   d.Kontrollfelt,
		Status:                status,
		Behandler:             d.SaksbehID,
		UtbetalingID:          d.Referanse,
		EksternTidspunkt:      model.Tidspunkt(eksternTidspunkt),
		Grunnlagsperioder:     perioder,
	}
	if err := k.Validate(); err != nil {
		return nil, &ParseError{Reason: "inconsistent kravgrunnlag", Err: err}
	}
	return Kravgrunnlagmelding{Kravgrunnlag: k}, nil
}

// mapGrunnlagsperiode pairs the FEIL and YTEL class lines of one month and
// cross-checks the benefit-class arithmetic: the recoverable amount must equal
// previous-paid minus corrected-paid.
func mapGrunnlagsperiode(p tilbakekrevingsPeriode) (model.Grunnlagsperiode, error) {
	var zero model.Grunnlagsperiode

	fom, err := time.Parse(time.DateOnly, p.Periode.Fom)
	if err != nil {
		return zero, &ParseError{Reason: fmt.Sprintf("bad periode fom %q", p.Periode.Fom), Err: err}
	}
	tom, err := time.Parse(time.DateOnly, p.Periode.Tom)
	if err != nil {
		return zero, &ParseError{Reason: fmt.Sprintf("bad periode tom %q", p.Periode.Tom), Err: err}
	}
	periode, err := model.NyPeriode(fom, tom)
	if err != nil {
		return zero, &ParseError{Reason: "bad periode", Err: err}
	}
	if !periode.ErMaaned() {
		return zero, &ParseError{Reason: fmt.Sprintf("periode %s is not a calendar month", periode)}
	}

	skattMnd, err := parseBelopDecimal(p.BelopSkattMnd, 2)
	if err != nil {
		return zero, &ParseError{Reason: fmt.Sprintf("bad belopSkattMnd %q", p.BelopSkattMnd), Err: err}
	}

	var ytelse *tilbakekrevingsBelop
	var feil *tilbakekrevingsBelop
	for i := range p.Belop {
		b := &p.Belop[i]
		switch b.TypeKlasse {
		case klasseTypeYtelse:
			if ytelse != nil {
				return zero, &ParseError{Reason: fmt.Sprintf("periode %s: multiple YTEL lines", periode)}
			}
			ytelse = b
		case klasseTypeFeil:
			if feil != nil {
				return zero, &ParseError{Reason: fmt.Sprintf("periode %s: multiple FEIL lines", periode)}
			}
			feil = b
		default:
			return zero, &ParseError{Reason: fmt.Sprintf("periode %s: unknown typeKlasse %q", periode, b.TypeKlasse)}
		}
	}
	if ytelse == nil || feil == nil {
		return zero, &ParseError{Reason: fmt.Sprintf("periode %s: FEIL and YTEL lines must both be present", periode)}
	}

	y, err := mapYtelse(*ytelse)
	if err != nil {
		return zero, &ParseError{Reason: fmt.Sprintf("periode %s: bad YTEL line", periode), Err: err}
	}
	f, err := mapFeilutbetaling(*feil)
	if err != nil {
		return zero, &ParseError{Reason: fmt.Sprintf("periode %s: bad FEIL line", periode), Err: err}
	}

	if diff := y.BelopTidligereUtbetaling - y.BelopNyUtbetaling; diff != y.BelopSkalTilbakekreves {
		return zero, &ParseError{Reason: fmt.Sprintf(
			"periode %s: belopTilbakekreves %d does not match belopOpprUtbet-belopNy %d",
			periode, y.BelopSkalTilbakekreves, diff)}
	}

	return model.Grunnlagsperiode{
		Periode:                      periode,
		BetaltSkattForYtelsesgruppen: skattMnd,
		Ytelse:                       y,
		Feilutbetaling:               f,
	}, nil
}

func mapYtelse(b tilbakekrevingsBelop) (model.Ytelse, error) {
	var y model.Ytelse
	var err error
	if y.BelopTidligereUtbetaling, err = parseBelopKroner(b.BelopOpprUtbet); err != nil {
		return y, err
	}
	if y.BelopNyUtbetaling, err = parseBelopKroner(b.BelopNy); err != nil {
		return y, err
	}
	if y.BelopSkalTilbakekreves, err = parseBelopKroner(b.BelopTilbakekreves); err != nil {
		return y, err
	}
	if y.BelopSkalIkkeTilbakekreves, err = parseBelopKroner(b.BelopUinnkrevd); err != nil {
		return y, err
	}
	if y.SkatteProsent, err = parseBelopDecimal(b.SkattProsent, 4); err != nil {
		return y, err
	}
	return y, nil
}

func mapFeilutbetaling(b tilbakekrevingsBelop) (model.Feilutbetaling, error) {
	var f model.Feilutbetaling
	var err error
	if f.BelopTidligereUtbetaling, err = parseBelopKroner(b.BelopOpprUtbet); err != nil {
		return f, err
	}
	if f.BelopNyUtbetaling, err = parseBelopKroner(b.BelopNy); err != nil {
		return f, err
	}
	if f.BelopSkalTilbakekreves, err = parseBelopKroner(b.BelopTilbakekreves); err != nil {
		return f, err
	}
	if f.BelopSkalIkkeTilbakekreves, err = parseBelopKroner(b.BelopUinnkrevd); err != nil {
		return f, err
	}
	return f, nil
}

// parseBelopKroner parses an amount like "16181.00" into whole kroner.
// The feed never carries fractional kroner on amount lines; a fraction means
// the message is corrupt.
func parseBelopKroner(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has fractional kroner", s)
	}
	return d.IntPart(), nil
}

// parseBelopDecimal parses a decimal field and normalizes it to the given
// scale with half-up rounding.
func parseBelopDecimal(s string, scale int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Round(scale), nil
}

func parseStatusendring(raw string) (Melding, error) {
	var melding endringKravOgVedtakstatus
	if err := xml.Unmarshal([]byte(raw), &melding); err != nil {
		return nil, &ParseError{Reason: "malformed endringKravOgVedtakstatus", Err: err}
	}
	s := melding.Status

	saksnummer, err := parseSaksnummer(s.FagsystemID)
	if err != nil {
		return nil, err
	}
	status, err := model.KravgrunnlagStatusFraKode(s.KodeStatusKrav)
	if err != nil {
		return nil, &ParseError{Reason: "bad kodeStatusKrav", Err: err}
	}
	if s.VedtakID == "" {
		return nil, &ParseError{Reason: "statusendring without vedtakId"}
	}

	return Statusendringsmelding{
		Saksnummer:      saksnummer,
		EksternVedtakID: s.VedtakID,
		Status:          status,
	}, nil
}
