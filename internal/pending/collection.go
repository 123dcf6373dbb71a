package pending

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
)

// Decode deserializes a persisted collection. A corrupt collection blob
// degrades to an empty queue; a single malformed entry is dropped and
// logged, never propagated. An empty or absent value is an empty queue.
func Decode(data []byte, log zerolog.Logger) []domain.TransactionRecord {
	if len(data) == 0 {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Error().Err(err).Msg("Pending collection is corrupt, treating as empty")
		return nil
	}

	records := make([]domain.TransactionRecord, 0, len(raw))
	for i, entry := range raw {
		var rec domain.TransactionRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping malformed pending entry")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Encode serializes the collection for persistence.
func Encode(records []domain.TransactionRecord) ([]byte, error) {
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode pending collection: %w", err)
	}
	return data, nil
}

// Upsert inserts rec into the collection, overwriting in place any
// entry sharing its code so a code never appears twice. A zero
// timestamp is stamped with the current time, the persist time.
func Upsert(records []domain.TransactionRecord, rec domain.TransactionRecord) []domain.TransactionRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	for i := range records {
		if records[i].Code == rec.Code {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

// RemoveCode filters out every record whose code equals code. This is a
// structural filter over typed records; the serialized form is never
// edited textually.
func RemoveCode(records []domain.TransactionRecord, code string) ([]domain.TransactionRecord, bool) {
	kept := records[:0]
	found := false
	for _, rec := range records {
		if rec.Code == code {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	return kept, found
}
