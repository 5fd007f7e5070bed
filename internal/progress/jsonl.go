package progress

import (
	"encoding/json"
	"io"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// WriteJSONLines writes every record received on ch as one JSON line until ch
// is closed. After a write error the remaining records are drained and the
// first error is returned.
func WriteJSONLines(w io.Writer, ch <-chan models.ProgressRecord) error {
	enc := json.NewEncoder(w)
	var firstErr error
	for rec := range ch {
		if firstErr != nil {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			firstErr = err
		}
	}
	return firstErr
}
