package appointments

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Raw column names of the Kaggle no-show export.
const (
	ColAppointmentID  = "AppointmentID"
	ColScheduledDay   = "ScheduledDay"
	ColAppointmentDay = "AppointmentDay"
	ColAge            = "Age"
	ColSMSReceived    = "SMS_received"
	ColNeighbourhood  = "Neighbourhood"
	ColNoShow         = "No-show"
)

// RequiredColumns is the raw column set the loader needs.
var RequiredColumns = []string{
	ColAppointmentID,
	ColScheduledDay,
	ColAppointmentDay,
	ColAge,
	ColSMSReceived,
	ColNeighbourhood,
	ColNoShow,
}

// DefaultPaths are tried in order by ResolvePath when no path is configured.
var DefaultPaths = []string{
	filepath.Join("data", "raw", "noshowappointments.csv"),
	filepath.Join("data", "noshowappointments.csv"),
}

var ErrNoDataFile = errors.New("appointments file not found")

// MissingColumnsError lists required columns absent from an input table.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// RequireColumns reports the required names that are not in present.
func RequireColumns(present []string, required []string) error {
	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[strings.TrimSpace(name)] = struct{}{}
	}
	var missing []string
	for _, name := range required {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// LoadOptions tunes derivations the raw file cannot supply.
type LoadOptions struct {
	AverageValue float64
}

func (o LoadOptions) averageValue() float64 {
	if o.AverageValue > 0 {
		return o.AverageValue
	}
	return DefaultAverageValue
}

// ResolvePath returns the first candidate that exists on disk.
func ResolvePath(candidates ...string) (string, error) {
	if len(candidates) == 0 {
		candidates = DefaultPaths
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w; place the CSV at one of: %s", ErrNoDataFile, strings.Join(candidates, ", "))
}

// Load reads the CSV at path into canonical records.
func Load(path string, opts LoadOptions) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Dataset{}, fmt.Errorf("%w: %s", ErrNoDataFile, path)
		}
		return Dataset{}, err
	}
	defer file.Close()

	dataset, err := Parse(file, opts)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	dataset.Path = path
	return dataset, nil
}

// ErrEmptyCSV is returned for input without even a header row.
var ErrEmptyCSV = errors.New("CSV has no header row")

// ReadFrame reads a CSV into a dataframe that keeps every cell as a string.
// Header names are trimmed. A header without rows yields a frame with the
// header's columns and no rows.
func ReadFrame(r io.Reader) (dataframe.DataFrame, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("unable to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, ErrEmptyCSV
	}
	for i, name := range rows[0] {
		rows[0][i] = strings.TrimSpace(name)
	}
	if len(rows) == 1 {
		columns := make([]series.Series, len(rows[0]))
		for i, name := range rows[0] {
			columns[i] = series.New([]string{}, series.String, name)
		}
		df := dataframe.New(columns...)
		if df.Err != nil {
			return df, fmt.Errorf("unable to read CSV: %w", df.Err)
		}
		return df, nil
	}

	df := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if df.Err != nil {
		return df, fmt.Errorf("unable to read CSV: %w", df.Err)
	}
	return df, nil
}

// Parse converts a raw CSV stream into canonical records.
func Parse(r io.Reader, opts LoadOptions) (Dataset, error) {
	df, err := ReadFrame(r)
	if err != nil {
		return Dataset{}, err
	}
	if err := RequireColumns(df.Names(), RequiredColumns); err != nil {
		return Dataset{}, err
	}

	ids := df.Col(ColAppointmentID).Records()
	scheduled := df.Col(ColScheduledDay).Records()
	appointment := df.Col(ColAppointmentDay).Records()
	ages := df.Col(ColAge).Records()
	sms := df.Col(ColSMSReceived).Records()
	areas := df.Col(ColNeighbourhood).Records()
	noShow := df.Col(ColNoShow).Records()

	value := opts.averageValue()
	dataset := Dataset{Records: make([]Record, 0, len(ids))}

	for i := range ids {
		id, err := parseInt(ids[i])
		if err != nil {
			dataset.InvalidRows++
			continue
		}
		age, err := parseInt(ages[i])
		if err != nil {
			dataset.InvalidRows++
			continue
		}
		if age < 0 {
			age = 0
		}

		schedAt, _ := ParseTimestamp(scheduled[i])
		apptAt, _ := ParseTimestamp(appointment[i])
		minutes, days := LeadTime(schedAt, apptAt)

		missed := ParseNoShow(noShow[i])
		dataset.Records = append(dataset.Records, Record{
			ID:              id,
			ScheduledAt:     schedAt,
			AppointmentAt:   apptAt,
			Age:             int(age),
			Age60Plus:       age >= SeniorAge,
			Channel:         ParseChannel(sms[i]),
			Area:            strings.TrimSpace(areas[i]),
			Specialty:       DefaultSpecialty,
			LeadTimeMinutes: minutes,
			LeadTimeDays:    days,
			Scheduled:       true,
			Attended:        !missed,
			NoShow:          missed,
			AverageValue:    value,
		})
	}
	return dataset, nil
}

// LeadTime returns the scheduling-to-visit delta in whole minutes and whole
// days. Negative deltas and null timestamps yield zero.
func LeadTime(scheduledAt, appointmentAt time.Time) (int, int) {
	if scheduledAt.IsZero() || appointmentAt.IsZero() {
		return 0, 0
	}
	minutes := appointmentAt.Sub(scheduledAt).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return int(math.RoundToEven(minutes)), int(math.RoundToEven(minutes / (60 * 24)))
}

// ParseChannel maps the SMS-received flag; anything but 1 is "No SMS".
func ParseChannel(value string) Channel {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err == nil && v == 1 {
		return ChannelSMS
	}
	return ChannelNoSMS
}

// ParseNoShow reads the target column; only "yes" counts as a no-show.
func ParseNoShow(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "yes")
}

// ParseTimestamp accepts the export's ISO timestamps plus plain dates.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", value)
}

func parseInt(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", value)
	}
	return int64(f), nil
}
