package kravgrunnlag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groblegark/sakd/internal/model"
)

const kravgrunnlagXML = `<?xml version="1.0" encoding="utf-8"?>
<urn:detaljertKravgrunnlagMelding xmlns:urn="urn:no:nav:tilbakekreving:kravgrunnlag:detalj:v1">
  <urn:detaljertKravgrunnlag>
    <urn:kravgrunnlagId>298604</urn:kravgrunnlagId>
    <urn:vedtakId>436204</urn:vedtakId>
    <urn:kodeStatusKrav>NY</urn:kodeStatusKrav>
    <urn:kodeFagomraade>SUUFORE</urn:kodeFagomraade>
    <urn:fagsystemId>2461</urn:fagsystemId>
    <urn:kontrollfelt>2021-01-01-02.02.03.456789</urn:kontrollfelt>
    <urn:saksbehId>K231B433</urn:saksbehId>
    <urn:referanse>268e62fb-3079-4e8d-ab32-ff9fb9</urn:referanse>
    <urn:tilbakekrevingsPeriode>
      <urn:periode>
        <mmel:fom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">2021-10-01</mmel:fom>
        <mmel:tom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">2021-10-31</mmel:tom>
      </urn:periode>
      <urn:belopSkattMnd>4395.00</urn:belopSkattMnd>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>KL_KODE_FEIL_INNT</urn:kodeKlasse>
        <urn:typeKlasse>FEIL</urn:typeKlasse>
        <urn:belopOpprUtbet>0.00</urn:belopOpprUtbet>
        <urn:belopNy>9989.00</urn:belopNy>
        <urn:belopTilbakekreves>0.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>0.0000</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>SUUFORE</urn:kodeKlasse>
        <urn:typeKlasse>YTEL</urn:typeKlasse>
        <urn:belopOpprUtbet>9989.00</urn:belopOpprUtbet>
        <urn:belopNy>0.00</urn:belopNy>
        <urn:belopTilbakekreves>9989.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>43.9983</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
    </urn:tilbakekrevingsPeriode>
  </urn:detaljertKravgrunnlag>
</urn:detaljertKravgrunnlagMelding>`

const statusendringXML = `<?xml version="1.0" encoding="utf-8"?>
<urn:endringKravOgVedtakstatus xmlns:urn="urn:no:nav:tilbakekreving:status:v1">
  <urn:kravOgVedtakstatus>
    <urn:vedtakId>436206</urn:vedtakId>
    <urn:kodeStatusKrav>SPER</urn:kodeStatusKrav>
    <urn:kodeFagomraade>SUUFORE</urn:kodeFagomraade>
    <urn:fagsystemId>2461</urn:fagsystemId>
    <urn:vedtakGjelderId>18108619852</urn:vedtakGjelderId>
    <urn:typeGjelderId>PERSON</urn:typeGjelderId>
  </urn:kravOgVedtakstatus>
</urn:endringKravOgVedtakstatus>`

func TestParse_KravgrunnlagXML(t *testing.T) {
	parsed, err := Parse(kravgrunnlagXML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	melding, ok := parsed.(Kravgrunnlagmelding)
	if !ok {
		t.Fatalf("Parse() = %T, want Kravgrunnlagmelding", parsed)
	}
	k := melding.Kravgrunnlag

	if k.Saksnummer != 2461 {
		t.Errorf("Saksnummer = %d, want 2461", k.Saksnummer)
	}
	if k.EksternKravgrunnlagID != "298604" {
		t.Errorf("EksternKravgrunnlagID = %q, want 298604", k.EksternKravgrunnlagID)
	}
	if k.EksternVedtakID != "436204" {
		t.Errorf("EksternVedtakID = %q, want 436204", k.EksternVedtakID)
	}
	if k.Status != model.KravgrunnlagStatusNytt {
		t.Errorf("Status = %q, want %q", k.Status, model.KravgrunnlagStatusNytt)
	}
	if k.Behandler != "K231B433" {
		t.Errorf("Behandler = %q, want K231B433", k.Behandler)
	}
	if k.UtbetalingID != "268e62fb-3079-4e8d-ab32-ff9fb9" {
		t.Errorf("UtbetalingID = %q", k.UtbetalingID)
	}

	wantTidspunkt := time.Date(2021, 1, 1, 2, 2, 3, 456789000, time.UTC)
	if !k.EksternTidspunkt.Equal(wantTidspunkt) {
		t.Errorf("EksternTidspunkt = %v, want %v", k.EksternTidspunkt, wantTidspunkt)
	}

	if len(k.Grunnlagsperioder) != 1 {
		t.Fatalf("len(Grunnlagsperioder) = %d, want 1", len(k.Grunnlagsperioder))
	}
	gp := k.Grunnlagsperioder[0]
	wantPeriode := model.NyMaaned(2021, time.October)
	if gp.Periode != wantPeriode {
		t.Errorf("Periode = %v, want %v", gp.Periode, wantPeriode)
	}
	if !gp.BetaltSkattForYtelsesgruppen.Equal(decimal.RequireFromString("4395.00")) {
		t.Errorf("BetaltSkattForYtelsesgruppen = %v, want 4395.00", gp.BetaltSkattForYtelsesgruppen)
	}
	if gp.Ytelse.BelopTidligereUtbetaling != 9989 {
		t.Errorf("Ytelse.BelopTidligereUtbetaling = %d, want 9989", gp.Ytelse.BelopTidligereUtbetaling)
	}
	if gp.Ytelse.BelopNyUtbetaling != 0 {
		t.Errorf("Ytelse.BelopNyUtbetaling = %d, want 0", gp.Ytelse.BelopNyUtbetaling)
	}
	if gp.Ytelse.BelopSkalTilbakekreves != 9989 {
		t.Errorf("Ytelse.BelopSkalTilbakekreves = %d, want 9989", gp.Ytelse.BelopSkalTilbakekreves)
	}
	if !gp.Ytelse.SkatteProsent.Equal(decimal.RequireFromString("43.9983")) {
		t.Errorf("SkatteProsent = %v, want 43.9983", gp.Ytelse.SkatteProsent)
	}
	if gp.Feilutbetaling.BelopNyUtbetaling != 9989 {
		t.Errorf("Feilutbetaling.BelopNyUtbetaling = %d, want 9989", gp.Feilutbetaling.BelopNyUtbetaling)
	}

	if got := k.SamletBelopSkalTilbakekreves(); got != 9989 {
		t.Errorf("SamletBelopSkalTilbakekreves() = %d, want 9989", got)
	}
}

func TestParse_StatusendringXML(t *testing.T) {
	parsed, err := Parse(statusendringXML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	melding, ok := parsed.(Statusendringsmelding)
	if !ok {
		t.Fatalf("Parse() = %T, want Statusendringsmelding", parsed)
	}
	if melding.Saksnummer != 2461 {
		t.Errorf("Saksnummer = %d, want 2461", melding.Saksnummer)
	}
	if melding.EksternVedtakID != "436206" {
		t.Errorf("EksternVedtakID = %q, want 436206", melding.EksternVedtakID)
	}
	if melding.Status != model.KravgrunnlagStatusSperret {
		t.Errorf("Status = %q, want %q", melding.Status, model.KravgrunnlagStatusSperret)
	}
}

// flerMaanedersXML builds a kravgrunnlag spanning consecutive months, each
// with a 2643 kroner overpayment: previous payout 16181, corrected 13538.
func flerMaanedersXML(t *testing.T, fra time.Time, antall int) string {
	t.Helper()
	var perioder strings.Builder
	for i := 0; i < antall; i++ {
		maaned := model.NyMaaned(fra.Year(), fra.Month())
		fmt.Fprintf(&perioder, `
    <urn:tilbakekrevingsPeriode>
      <urn:periode>
        <mmel:fom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">%s</mmel:fom>
        <mmel:tom xmlns:mmel="urn:no:nav:tilbakekreving:typer:v1">%s</mmel:tom>
      </urn:periode>
      <urn:belopSkattMnd>1162.00</urn:belopSkattMnd>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>KL_KODE_FEIL_INNT</urn:kodeKlasse>
        <urn:typeKlasse>FEIL</urn:typeKlasse>
        <urn:belopOpprUtbet>0.00</urn:belopOpprUtbet>
        <urn:belopNy>2643.00</urn:belopNy>
        <urn:belopTilbakekreves>0.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>0.0000</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
      <urn:tilbakekrevingsBelop>
        <urn:kodeKlasse>SUUFORE</urn:kodeKlasse>
        <urn:typeKlasse>YTEL</urn:typeKlasse>
        <urn:belopOpprUtbet>16181.00</urn:belopOpprUtbet>
        <urn:belopNy>13538.00</urn:belopNy>
        <urn:belopTilbakekreves>2643.00</urn:belopTilbakekreves>
        <urn:belopUinnkrevd>0.00</urn:belopUinnkrevd>
        <urn:skattProsent>43.9983</urn:skattProsent>
      </urn:tilbakekrevingsBelop>
    </urn:tilbakekrevingsPeriode>`,
			maaned.FraOgMed.Format(time.DateOnly), maaned.TilOgMed.Format(time.DateOnly))
		fra = fra.AddDate(0, 1, 0)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<urn:detaljertKravgrunnlagMelding xmlns:urn="urn:no:nav:tilbakekreving:kravgrunnlag:detalj:v1">
  <urn:detaljertKravgrunnlag>
    <urn:kravgrunnlagId>298606</urn:kravgrunnlagId>
    <urn:vedtakId>436208</urn:vedtakId>
    <urn:kodeStatusKrav>NY</urn:kodeStatusKrav>
    <urn:kodeFagomraade>SUUFORE</urn:kodeFagomraade>
    <urn:fagsystemId>2461</urn:fagsystemId>
    <urn:kontrollfelt>2022-02-01-02.03.42.456789</urn:kontrollfelt>
    <urn:saksbehId>K231B433</urn:saksbehId>
    <urn:referanse>d9b27a10-1a7e-45f0-b2bb-e5c4c4</urn:referanse>%s
  </urn:detaljertKravgrunnlag>
</urn:detaljertKravgrunnlagMelding>`, perioder.String())
}

func TestParse_FlereMaaneder(t *testing.T) {
	raw := flerMaanedersXML(t, time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC), 3)
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	k := parsed.(Kravgrunnlagmelding).Kravgrunnlag

	if len(k.Grunnlagsperioder) != 3 {
		t.Fatalf("len(Grunnlagsperioder) = %d, want 3", len(k.Grunnlagsperioder))
	}
	for _, gp := range k.Grunnlagsperioder {
		if gp.Ytelse.BelopTidligereUtbetaling != 16181 {
			t.Errorf("periode %s: BelopTidligereUtbetaling = %d, want 16181", gp.Periode, gp.Ytelse.BelopTidligereUtbetaling)
		}
		if gp.Ytelse.BelopNyUtbetaling != 13538 {
			t.Errorf("periode %s: BelopNyUtbetaling = %d, want 13538", gp.Periode, gp.Ytelse.BelopNyUtbetaling)
		}
		if gp.Ytelse.BelopSkalTilbakekreves != 2643 {
			t.Errorf("periode %s: BelopSkalTilbakekreves = %d, want 2643", gp.Periode, gp.Ytelse.BelopSkalTilbakekreves)
		}
		if gp.Feilutbetaling.BelopNyUtbetaling != 2643 {
			t.Errorf("periode %s: Feilutbetaling.BelopNyUtbetaling = %d, want 2643", gp.Periode, gp.Feilutbetaling.BelopNyUtbetaling)
		}
		if !gp.Ytelse.SkatteProsent.Equal(decimal.RequireFromString("43.9983")) {
			t.Errorf("periode %s: SkatteProsent = %v, want 43.9983", gp.Periode, gp.Ytelse.SkatteProsent)
		}
	}
	if got := k.SamletBelopSkalTilbakekreves(); got != 3*2643 {
		t.Errorf("SamletBelopSkalTilbakekreves() = %d, want %d", got, 3*2643)
	}
}

func TestParse_KravgrunnlagJSON(t *testing.T) {
	raw := `{
	  "detaljertKravgrunnlag": {
	    "kravgrunnlagId": "298604",
	    "vedtakId": "436204",
	    "kodeStatusKrav": "NY",
	    "fagsystemId": "2461",
	    "kontrollfelt": "2021-01-01-02.02.03.456789",
	    "saksbehId": "K231B433",
	    "utbetalingId": "268e62fb-3079-4e8d-ab32-ff9fb9",
	    "tilbakekrevingsperioder": [
	      {
	        "periode": {"fraOgMed": "2021-10-01", "tilOgMed": "2021-10-31"},
	        "belopSkattMnd": "4395.00",
	        "ytelse": {
	          "belopTidligereUtbetaling": 9989,
	          "belopNyUtbetaling": 0,
	          "belopSkalTilbakekreves": 9989,
	          "belopSkalIkkeTilbakekreves": 0,
	          "skatteProsent": "43.9983"
	        },
	        "feilutbetaling": {
	          "belopTidligereUtbetaling": 0,
	          "belopNyUtbetaling": 9989,
	          "belopSkalTilbakekreves": 0,
	          "belopSkalIkkeTilbakekreves": 0
	        }
	      }
	    ]
	  }
	}`
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	k := parsed.(Kravgrunnlagmelding).Kravgrunnlag
	if k.EksternKravgrunnlagID != "298604" || k.Saksnummer != 2461 {
		t.Errorf("unexpected kravgrunnlag: %+v", k)
	}
	if !k.Grunnlagsperioder[0].Ytelse.SkatteProsent.Equal(decimal.RequireFromString("43.9983")) {
		t.Errorf("SkatteProsent = %v", k.Grunnlagsperioder[0].Ytelse.SkatteProsent)
	}
}

func TestParse_StatusendringJSON(t *testing.T) {
	raw := `{"endringKravOgVedtakstatus": {"vedtakId": "436206", "kodeStatusKrav": "SPER", "fagsystemId": "2461"}}`
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	melding := parsed.(Statusendringsmelding)
	if melding.EksternVedtakID != "436206" || melding.Status != model.KravgrunnlagStatusSperret {
		t.Errorf("unexpected statusendring: %+v", melding)
	}
}

func TestParse_Feil(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"garbage", "not a message"},
		{"unknown xml root", "<ukjentMelding></ukjentMelding>"},
		{"json with both payloads", `{"detaljertKravgrunnlag": {}, "endringKravOgVedtakstatus": {}}`},
		{"json with neither payload", `{"noe": "annet"}`},
		{"statusendring without vedtakId", `{"endringKravOgVedtakstatus": {"kodeStatusKrav": "SPER", "fagsystemId": "2461"}}`},
		{"unknown status code", `{"endringKravOgVedtakstatus": {"vedtakId": "1", "kodeStatusKrav": "XXXX", "fagsystemId": "2461"}}`},
		{
			"ytelse arithmetic mismatch",
			strings.Replace(kravgrunnlagXML, "<urn:belopTilbakekreves>9989.00</urn:belopTilbakekreves>", "<urn:belopTilbakekreves>9000.00</urn:belopTilbakekreves>", 1),
		},
		{
			"periode not a month",
			strings.Replace(kravgrunnlagXML, "2021-10-31", "2021-11-15", 1),
		},
		{
			"fractional kroner",
			strings.Replace(kravgrunnlagXML, "<urn:belopOpprUtbet>9989.00</urn:belopOpprUtbet>", "<urn:belopOpprUtbet>9989.50</urn:belopOpprUtbet>", 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
		})
	}
}
