// Package arkiv periodically exports the hendelse log as JSONL to an archive
// destination. The export is a full snapshot; the hendelse log is append-only,
// so each snapshot strictly extends the previous one.
package arkiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/groblegark/sakd/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	HendelseCount int       `json:"hendelseCount"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every hendelse from the store as JSONL to w, ordered by
// entity and version.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	hendelser, err := s.AlleHendelser(ctx)
	if err != nil {
		return fmt.Errorf("alle hendelser: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		HendelseCount: len(hendelser),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, h := range hendelser {
		if err := enc.Encode(record{Type: "hendelse", Data: h}); err != nil {
			return fmt.Errorf("encode hendelse %s: %w", h.HendelseID, err)
		}
	}
	return nil
}
