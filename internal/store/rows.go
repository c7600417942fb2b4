package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/chargeback-desk/internal/disputes"
)

// decodeDocuments accepts the documents column as stored by the wizard.
// Malformed JSON reads as no documents rather than failing the batch.
func decodeDocuments(raw []byte) []disputes.Document {
	if len(raw) == 0 {
		return nil
	}
	var docs []disputes.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil
	}
	return docs
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func eligibilityStatus(s *string) *disputes.EligibilityStatus {
	if s == nil || *s == "" {
		return nil
	}
	e := disputes.EligibilityStatus(*s)
	return &e
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
