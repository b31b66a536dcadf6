package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/groblegark/sakd/internal/model"
)

// httpAPI is the shared JSON transport for the collaborator clients.
type httpAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newHTTPAPI(baseURL, token string) httpAPI {
	return httpAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpAPI) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content — success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return nil
}

// OppgaveClient implements Oppgaver against the oppgave system's REST API.
type OppgaveClient struct {
	httpAPI
}

func NewOppgaveClient(baseURL, token string) *OppgaveClient {
	return &OppgaveClient{httpAPI: newHTTPAPI(baseURL, token)}
}

func (c *OppgaveClient) OpprettOppgave(ctx context.Context, req *OppgaveRequest) (string, error) {
	var resp struct {
		OppgaveID string `json:"oppgaveId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/oppgaver", req, &resp); err != nil {
		return "", err
	}
	return resp.OppgaveID, nil
}

func (c *OppgaveClient) LukkOppgave(ctx context.Context, oppgaveID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/oppgaver/"+url.PathEscape(oppgaveID)+"/lukk", nil, nil)
}

// DokumentClient implements Dokumenter against the document distribution API.
type DokumentClient struct {
	httpAPI
}

func NewDokumentClient(baseURL, token string) *DokumentClient {
	return &DokumentClient{httpAPI: newHTTPAPI(baseURL, token)}
}

func (c *DokumentClient) SendBrev(ctx context.Context, req *BrevRequest) (string, error) {
	var resp struct {
		DokumentID string `json:"dokumentId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/brev", req, &resp); err != nil {
		return "", err
	}
	return resp.DokumentID, nil
}

// PersonClient implements Personoppslag against the person registry.
type PersonClient struct {
	httpAPI
}

func NewPersonClient(baseURL, token string) *PersonClient {
	return &PersonClient{httpAPI: newHTTPAPI(baseURL, token)}
}

func (c *PersonClient) HentPerson(ctx context.Context, fnr string) (*Person, error) {
	var person Person
	if err := c.doJSON(ctx, http.MethodGet, "/v1/personer/"+url.PathEscape(fnr), nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// SimuleringClient cross-checks kravgrunnlag amounts against the payment
// simulation service before a decision is carried out.
type SimuleringClient struct {
	httpAPI
}

func NewSimuleringClient(baseURL, token string) *SimuleringClient {
	return &SimuleringClient{httpAPI: newHTTPAPI(baseURL, token)}
}

type simuleringRequest struct {
	Saksnummer int64           `json:"saksnummer"`
	Perioder   []model.Periode `json:"perioder"`
}

type simuleringResponse struct {
	Perioder []struct {
		Periode         model.Periode `json:"periode"`
		Feilutbetaling  int64         `json:"feilutbetaling"`
	} `json:"perioder"`
}

// KontrollerMotSimulering runs a fresh simulation for the kravgrunnlag's
// months and fails if any month's simulated overpayment differs from the
// amount the decision is about to recover.
func (c *SimuleringClient) KontrollerMotSimulering(ctx context.Context, saksnummer int64, k model.Kravgrunnlag) error {
	var resp simuleringResponse
	req := simuleringRequest{Saksnummer: saksnummer, Perioder: k.Perioder()}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/simulering", req, &resp); err != nil {
		return err
	}

	simulert := make(map[model.Periode]int64, len(resp.Perioder))
	for _, p := range resp.Perioder {
		simulert[p.Periode] = p.Feilutbetaling
	}
	for _, gp := range k.Grunnlagsperioder {
		belop, ok := simulert[gp.Periode]
		if !ok {
			return fmt.Errorf("simulering mangler periode %s", gp.Periode)
		}
		if belop != gp.Ytelse.BelopSkalTilbakekreves {
			return fmt.Errorf("simulering avviker for %s: simulert %d, kravgrunnlag %d",
				gp.Periode, belop, gp.Ytelse.BelopSkalTilbakekreves)
		}
	}
	return nil
}
