package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const fallbackEncoding = "cl100k_base"

var loaderOnce sync.Once

// Meter counts billing units with the provider's BPE encoding.
// A Meter is safe for concurrent use.
type Meter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
}

// New builds a Meter for model. BPE ranks are loaded from the embedded
// offline tables so no network access is needed at startup.
func New(model string) (*Meter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	model = strings.TrimSpace(model)
	if model == "" {
		model = "gpt-4o"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &Meter{model: model, encoding: encodingName(model), enc: enc}, nil
	}
	enc, fbErr := tiktoken.GetEncoding(fallbackEncoding)
	if fbErr != nil {
		return nil, fmt.Errorf("tokenizer for %q: %w (fallback: %v)", model, err, fbErr)
	}
	return &Meter{model: model, encoding: fallbackEncoding, enc: enc}, nil
}

// Count returns the number of tokens in text. Special-token markers in user
// text are counted as plain text.
func (m *Meter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(m.enc.Encode(text, nil, nil))
}

func (m *Meter) Model() string    { return m.model }
func (m *Meter) Encoding() string { return m.encoding }

func encodingName(model string) string {
	if enc, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return enc
	}
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return ""
}
