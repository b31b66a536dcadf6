package tilbakekreving

// Tilstand is the lifecycle state of a behandling. Each state is its own type
// implementing only the capability interfaces for the transitions that are
// legal from it, so an illegal transition fails a type assertion instead of a
// status comparison someone forgot to update.
type Tilstand interface {
	Status() Status
	ErAapen() bool
}

// Capability interfaces. The unexported marker methods seal them to the state
// types below; the service guards by asserting the behandling's Tilstand
// against the capability the action needs.

// KanFaaKravgrunnlag marks states where a (newer) kravgrunnlag may be attached.
type KanFaaKravgrunnlag interface{ kanFaaKravgrunnlag() }

// KanForhaandsvarsles marks states where a pre-notification may be sent.
type KanForhaandsvarsles interface{ kanForhaandsvarsles() }

// KanVurderes marks states where month assessments may be added or replaced.
type KanVurderes interface{ kanVurderes() }

// KanFaaVedtaksbrev marks states where the decision letter may be edited.
type KanFaaVedtaksbrev interface{ kanFaaVedtaksbrev() }

// KanSendesTilAttestering marks states ready for the four-eyes check.
type KanSendesTilAttestering interface{ kanSendesTilAttestering() }

// KanAttesteres marks the state where the attestant decides.
type KanAttesteres interface{ kanAttesteres() }

// OpprettetUtenKravgrunnlag is a behandling opened before any kravgrunnlag
// arrived on the sak. Nothing can be assessed yet; attaching the kravgrunnlag
// moves it to Opprettet.
type OpprettetUtenKravgrunnlag struct{}

func (OpprettetUtenKravgrunnlag) Status() Status { return StatusOpprettetUtenKravgrunnlag }
func (OpprettetUtenKravgrunnlag) ErAapen() bool { return true }
func (OpprettetUtenKravgrunnlag) kanFaaKravgrunnlag() {}

// Opprettet is a freshly opened (or rebased) behandling with a kravgrunnlag.
type Opprettet struct{}

func (Opprettet) Status() Status { return StatusOpprettet }
func (Opprettet) ErAapen() bool { return true }
func (Opprettet) kanFaaKravgrunnlag() {}
func (Opprettet) kanForhaandsvarsles() {}
func (Opprettet) kanVurderes() {}

// Forhaandsvarslet is a behandling whose person has been warned.
type Forhaandsvarslet struct{}

func (Forhaandsvarslet) Status() Status { return StatusForhaandsvarslet }
func (Forhaandsvarslet) ErAapen() bool { return true }
func (Forhaandsvarslet) kanFaaKravgrunnlag() {}
func (Forhaandsvarslet) kanForhaandsvarsles() {}
func (Forhaandsvarslet) kanVurderes() {}

// Vurdert has a complete set of month assessments.
type Vurdert struct{}

func (Vurdert) Status() Status { return StatusVurdert }
func (Vurdert) ErAapen() bool { return true }
func (Vurdert) kanFaaKravgrunnlag() {}
func (Vurdert) kanForhaandsvarsles() {}
func (Vurdert) kanVurderes() {}
func (Vurdert) kanFaaVedtaksbrev() {}
func (Vurdert) kanSendesTilAttestering() {}

// VedtaksbrevSkrevet has assessments and a decision-letter text.
type VedtaksbrevSkrevet struct{}

func (VedtaksbrevSkrevet) Status() Status { return StatusVedtaksbrev }
func (VedtaksbrevSkrevet) ErAapen() bool { return true }
func (VedtaksbrevSkrevet) kanFaaKravgrunnlag() {}
func (VedtaksbrevSkrevet) kanForhaandsvarsles() {}
func (VedtaksbrevSkrevet) kanVurderes() {}
func (VedtaksbrevSkrevet) kanFaaVedtaksbrev() {}
func (VedtaksbrevSkrevet) kanSendesTilAttestering() {}

// TilAttestering is with the attestant. The case worker cannot change it until
// it comes back.
type TilAttestering struct{}

func (TilAttestering) Status() Status { return StatusTilAttestering }
func (TilAttestering) ErAapen() bool { return true }
func (TilAttestering) kanAttesteres() {}

// Underkjent was sent back by the attestant; the case worker reworks it.
type Underkjent struct{}

func (Underkjent) Status() Status { return StatusUnderkjent }
func (Underkjent) ErAapen() bool { return true }
func (Underkjent) kanFaaKravgrunnlag() {}
func (Underkjent) kanForhaandsvarsles() {}
func (Underkjent) kanVurderes() {}
func (Underkjent) kanFaaVedtaksbrev() {}
func (Underkjent) kanSendesTilAttestering() {}

// Iverksatt is terminal: the decision was carried out.
type Iverksatt struct{}

func (Iverksatt) Status() Status { return StatusIverksatt }
func (Iverksatt) ErAapen() bool { return false }

// Avbrutt is terminal: closed without a decision.
type Avbrutt struct{}

func (Avbrutt) Status() Status { return StatusAvbrutt }
func (Avbrutt) ErAapen() bool { return false }
