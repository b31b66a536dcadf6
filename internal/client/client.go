// Package client provides transport-agnostic interfaces for the collaborating
// services (oppgave system, document distribution, person registry, payment
// simulation) and HTTP/JSON implementations of them.
package client

import (
	"context"
	"fmt"
	"time"
)

// APIError is a non-2xx response from a collaborating service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// OppgaveRequest asks the oppgave system to create a follow-up task for a
// case worker.
type OppgaveRequest struct {
	Saksnummer  int64     `json:"saksnummer"`
	Fnr         string    `json:"fnr"`
	Beskrivelse string    `json:"beskrivelse"`
	Frist       time.Time `json:"frist"`
}

// Oppgaver manages follow-up tasks in the case-handling system.
type Oppgaver interface {
	OpprettOppgave(ctx context.Context, req *OppgaveRequest) (string, error)
	LukkOppgave(ctx context.Context, oppgaveID string) error
}

// BrevRequest asks document distribution to render and send a letter.
type BrevRequest struct {
	Saksnummer int64  `json:"saksnummer"`
	Fnr        string `json:"fnr"`
	Tittel     string `json:"tittel"`
	Fritekst   string `json:"fritekst"`
}

// Dokumenter renders and distributes letters to the person.
type Dokumenter interface {
	SendBrev(ctx context.Context, req *BrevRequest) (string, error)
}

// Person is the subset of the person registry this service needs for letters.
type Person struct {
	Fnr  string `json:"fnr"`
	Navn string `json:"navn"`
}

// Personoppslag resolves person details.
type Personoppslag interface {
	HentPerson(ctx context.Context, fnr string) (*Person, error)
}
