package dashboard

import (
	"context"
	"time"

	"github.com/example/chargeback-desk/internal/disputes"
)

// Query selects one view of the dashboard. An empty Bucket selects every
// visible dispute.
type Query struct {
	Bucket disputes.Bucket    `json:"bucket,omitempty"`
	Filter disputes.Filter    `json:"filter"`
	Sort   disputes.SortState `json:"sort"`
}

// Row is one visible dispute with its derived display fields.
type Row struct {
	disputes.Aggregate
	CurrentLabel string          `json:"current_label"`
	Bucket       disputes.Bucket `json:"bucket"`
	Color        disputes.Color  `json:"color"`
}

type View struct {
	Generation uint64             `json:"generation"`
	LoadedAt   time.Time          `json:"loaded_at"`
	Bucket     disputes.Bucket    `json:"bucket,omitempty"`
	Sort       disputes.SortState `json:"sort"`
	Total      int                `json:"total"`
	Rows       []Row              `json:"rows"`
	LoadErrors map[string]string  `json:"load_errors,omitempty"`
}

// Counts is the number of visible disputes per bucket.
type Counts struct {
	Generation uint64                  `json:"generation"`
	Buckets    map[disputes.Bucket]int `json:"buckets"`
	Total      int                     `json:"total"`
	LoadErrors map[string]string       `json:"load_errors,omitempty"`
}

// History is the full activity timeline of one dispute.
type History struct {
	Generation   uint64              `json:"generation"`
	DisputeID    string              `json:"dispute_id"`
	Status       disputes.Status     `json:"status"`
	CurrentLabel string              `json:"current_label"`
	Bucket       disputes.Bucket     `json:"bucket"`
	Color        disputes.Color      `json:"color"`
	Activities   []disputes.Activity `json:"activities"`
	LoadErrors   map[string]string   `json:"load_errors,omitempty"`
}

// Query runs classify, filter, sort and label over the current snapshot.
// Views are cached per snapshot generation.
func (s *Service) Query(ctx context.Context, q Query) (*View, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	key, err := cacheKey(snap.ID, q)
	if err == nil {
		if view, ok, cacheErr := s.cache.Get(ctx, key); cacheErr != nil {
			s.logger.WarnContext(ctx, "view cache read failed", "error", cacheErr)
		} else if ok {
			return view, nil
		}
	}

	view := buildView(snap, q)

	if key != "" {
		if cacheErr := s.cache.Set(ctx, key, view); cacheErr != nil {
			s.logger.WarnContext(ctx, "view cache write failed", "error", cacheErr)
		}
	}
	return view, nil
}

func buildView(snap *Snapshot, q Query) *View {
	rows := make([]Row, 0, len(snap.Aggregates))
	for _, agg := range snap.Aggregates {
		bucket, visible := disputes.BucketOf(agg)
		if !visible || (q.Bucket != "" && bucket != q.Bucket) {
			continue
		}
		row := Row{
			Aggregate:    agg,
			CurrentLabel: disputes.CurrentLabel(agg),
			Bucket:       bucket,
			Color:        bucket.Color(),
		}
		if !matchRow(row, q.Filter) {
			continue
		}
		rows = append(rows, row)
	}

	if q.Sort.Active() {
		rows = disputes.Sort(rows, q.Sort.Field, q.Sort.Direction)
	}

	return &View{
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt,
		Bucket:     q.Bucket,
		Sort:       q.Sort,
		Total:      len(rows),
		Rows:       rows,
		LoadErrors: snap.LoadErrors,
	}
}

// matchRow reuses the already derived label for the current status filter.
func matchRow(row Row, f disputes.Filter) bool {
	if f.CurrentStatus != "" {
		if row.CurrentLabel != f.CurrentStatus {
			return false
		}
		f.CurrentStatus = ""
	}
	return disputes.Matches(row.Aggregate, f)
}

// Counts sizes every bucket with the same partition views use.
func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	counts := &Counts{
		Generation: snap.Generation,
		Buckets:    make(map[disputes.Bucket]int, len(disputes.Buckets())),
		LoadErrors: snap.LoadErrors,
	}
	for _, b := range disputes.Buckets() {
		counts.Buckets[b] = 0
	}
	for _, agg := range snap.Aggregates {
		if b, ok := disputes.BucketOf(agg); ok {
			counts.Buckets[b]++
			counts.Total++
		}
	}
	return counts, nil
}

// Activities builds the full history of one visible dispute.
func (s *Service) Activities(ctx context.Context, id string) (*History, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	agg, ok := snap.find(id)
	if !ok {
		return nil, ErrDisputeNotFound
	}
	bucket, visible := disputes.BucketOf(agg)
	if !visible {
		return nil, ErrDisputeNotFound
	}

	activities := disputes.Build(agg)
	if activities == nil {
		activities = []disputes.Activity{}
	}
	return &History{
		Generation:   snap.Generation,
		DisputeID:    agg.ID,
		Status:       agg.Status,
		CurrentLabel: disputes.LabelFor(agg.Status, activities),
		Bucket:       bucket,
		Color:        bucket.Color(),
		Activities:   activities,
		LoadErrors:   snap.LoadErrors,
	}, nil
}
