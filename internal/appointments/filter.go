package appointments

import "time"

// Filter narrows a table the way the dashboard sidebar does. Zero values
// disable the corresponding condition.
type Filter struct {
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
	Areas    []string  `json:"areas,omitempty"`
	MinAge   *int      `json:"min_age,omitempty"`
	MaxAge   *int      `json:"max_age,omitempty"`
}

// Apply returns the matching records. The input slice is never modified.
func (f Filter) Apply(records []Record) []Record {
	channels := make(map[Channel]struct{}, len(f.Channels))
	for _, channel := range f.Channels {
		channels[channel] = struct{}{}
	}
	areas := make(map[string]struct{}, len(f.Areas))
	for _, area := range f.Areas {
		areas[area] = struct{}{}
	}
	from := dateOnly(f.From)
	to := dateOnly(f.To)

	out := make([]Record, 0, len(records))
	for _, record := range records {
		if !from.IsZero() || !to.IsZero() {
			day := dateOnly(record.ScheduledAt)
			if day.IsZero() {
				continue
			}
			if !from.IsZero() && day.Before(from) {
				continue
			}
			if !to.IsZero() && day.After(to) {
				continue
			}
		}
		if len(channels) > 0 {
			if _, ok := channels[record.Channel]; !ok {
				continue
			}
		}
		if len(areas) > 0 {
			if _, ok := areas[record.Area]; !ok {
				continue
			}
		}
		if f.MinAge != nil && record.Age < *f.MinAge {
			continue
		}
		if f.MaxAge != nil && record.Age > *f.MaxAge {
			continue
		}
		out = append(out, record)
	}
	return out
}

// IsZero reports whether the filter passes everything.
func (f Filter) IsZero() bool {
	return f.From.IsZero() && f.To.IsZero() && len(f.Channels) == 0 && len(f.Areas) == 0 && f.MinAge == nil && f.MaxAge == nil
}

func dateOnly(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
