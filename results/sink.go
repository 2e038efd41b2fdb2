package results

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/use-agent/charitybot/models"
)

// Sink receives every record as soon as the collector has it.
type Sink interface {
	Write(rec models.CharityRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec models.CharityRecord) error

func (f SinkFunc) Write(rec models.CharityRecord) error { return f(rec) }

// JSONLSink streams one JSON object per line, so a run that dies halfway
// still leaves every record it produced on disk.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink writes to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

func (s *JSONLSink) Write(rec models.CharityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("results: jsonl encode %s: %w", rec.ABN, err)
	}
	return nil
}
