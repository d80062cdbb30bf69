// internal/training/export.go
package training

import (
	"encoding/json"
	"io"
	"time"

	"discord-feedback-bot/internal/models"
)

// ExportRecord is the stable wire shape of one training pair.
type ExportRecord struct {
	Prompt    string    `json:"prompt"`
	Chosen    string    `json:"chosen"`
	Rejected  []string  `json:"rejected"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func ToRecords(pairs []models.TrainingPair) []ExportRecord {
	records := make([]ExportRecord, 0, len(pairs))
	for _, p := range pairs {
		rejected := []string(p.RejectedTexts)
		if rejected == nil {
			rejected = []string{}
		}
		records = append(records, ExportRecord{
			Prompt:    p.PromptText,
			Chosen:    p.ChosenText,
			Rejected:  rejected,
			Score:     p.Score,
			CreatedAt: p.CreatedAt.UTC(),
		})
	}
	return records
}

// WriteJSON writes pairs as an indented JSON array, preserving their order.
func WriteJSON(w io.Writer, pairs []models.TrainingPair) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(ToRecords(pairs))
}
