// Package kravgrunnlag parses claim-basis messages from the settlement system
// and reconciles them against live case state. Two wire formats are in use:
// the legacy free-form XML feed and a structured JSON feed shaped like the
// domain model. Raw payloads are retained verbatim whatever the outcome.
package kravgrunnlag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/groblegark/sakd/internal/model"
)

// ParseError marks a message as malformed or unrecognized. It is fatal for
// that message only; the consumer loop retains the payload and moves on.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse kravgrunnlag: %s: %v", e.Reason, e.Err)
	}
	return "parse kravgrunnlag: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Melding is the discriminated result of parsing an intake message: either a
// full claim basis or a status-only change referencing an earlier one.
type Melding interface {
	isMelding()
}

// Kravgrunnlagmelding carries a complete parsed claim basis.
type Kravgrunnlagmelding struct {
	Kravgrunnlag model.Kravgrunnlag
}

func (Kravgrunnlagmelding) isMelding() {}

// Statusendringsmelding is a lighter notification: a new status for a claim
// basis previously received, keyed by the external decision id. It never
// carries monetary rows.
type Statusendringsmelding struct {
	Saksnummer      int64
	EksternVedtakID string
	Status          model.KravgrunnlagStatus
}

func (Statusendringsmelding) isMelding() {}

// Parse dispatches on the first significant character of the payload: '<'
// selects the legacy XML schema, '{' the structured JSON feed. Anything else
// is a fatal *ParseError.
func Parse(raw string) (Melding, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Reason: "empty message"}
	}
	switch trimmed[0] {
	case '<':
		return parseXML(trimmed)
	case '{':
		return parseJSON(trimmed)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unrecognized message shape starting with %q", trimmed[0])}
	}
}

// parseSaksnummer parses the fagsystemId field, which carries the case number
// of the originating system.
func parseSaksnummer(fagsystemID string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(fagsystemID), 10, 64)
	if err != nil {
		return 0, &ParseError{Reason: fmt.Sprintf("bad fagsystemId %q", fagsystemID), Err: err}
	}
	return n, nil
}
