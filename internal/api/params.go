package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/chargeback-desk/internal/dashboard"
	"github.com/example/chargeback-desk/internal/disputes"
)

// parseQuery reads a dashboard query from URL parameters. The search body is
// flattened into the same parameters so both routes share one parser.
func parseQuery(v url.Values) (dashboard.Query, error) {
	var q dashboard.Query

	if raw := v.Get("bucket"); raw != "" {
		b, err := disputes.ParseBucket(raw)
		if err != nil {
			return q, err
		}
		q.Bucket = b
	}

	dir, err := disputes.ParseDirection(v.Get("direction"))
	if err != nil {
		return q, err
	}
	if field := strings.TrimSpace(v.Get("sort")); field != "" && dir != disputes.DirectionNone {
		q.Sort = disputes.SortState{Field: field, Direction: dir}
	}

	f := &q.Filter
	f.CurrentStatus = strings.TrimSpace(v.Get("current_status"))
	f.Currency = strings.TrimSpace(v.Get("currency"))
	f.AcquirerName = v.Get("acquirer_name")
	f.MerchantName = v.Get("merchant_name")
	f.MerchantCategoryCode = strings.TrimSpace(v.Get("merchant_category_code"))
	f.MerchantID = strings.TrimSpace(v.Get("merchant_id"))
	f.ReferenceNumber = strings.TrimSpace(v.Get("reference_number"))
	f.Tid = strings.TrimSpace(v.Get("tid"))

	for name, dst := range map[string]**decimal.Decimal{
		"amount_min":        &f.AmountMin,
		"amount_max":        &f.AmountMax,
		"refund_amount_min": &f.RefundAmountMin,
		"refund_amount_max": &f.RefundAmountMax,
	} {
		raw := strings.TrimSpace(v.Get(name))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return q, fmt.Errorf("%s: not a number", name)
		}
		*dst = &d
	}

	for name, dst := range map[string]**time.Time{
		"date_from": &f.DateFrom,
		"date_to":   &f.DateTo,
	} {
		raw := strings.TrimSpace(v.Get(name))
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return q, fmt.Errorf("%s: %w", name, err)
		}
		*dst = &t
	}

	if f.RefundReceived, err = disputes.ParseTriState(v.Get("refund_received")); err != nil {
		return q, err
	}
	if f.Settled, err = disputes.ParseTriState(v.Get("settled")); err != nil {
		return q, err
	}
	return q, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	return t, nil
}
