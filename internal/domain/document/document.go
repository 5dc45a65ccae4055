package document

import "fmt"

// Record maps a passage id to its display text.
// Ids are assigned at corpus preparation time and match the engine's passage ids.
type Record struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Validate checks that the record can enter the metadata table.
func (r Record) Validate() error {
	if r.ID < 0 {
		return fmt.Errorf("document id must be non-negative, got %d", r.ID)
	}
	return nil
}
