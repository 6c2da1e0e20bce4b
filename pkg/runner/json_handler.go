package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// JSONHandler writes one JSON object per event (JSON Lines).
type JSONHandler struct {
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON output.
func NewJSONHandler(w io.Writer) *JSONHandler {
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{Encoder: json.NewEncoder(w)}
}

func (h *JSONHandler) Handle(_ context.Context, ev domain.Event) error {
	return h.Encoder.Encode(ev)
}
