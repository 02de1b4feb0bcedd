package appointments

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"
)

// Channel is the confirmation channel of an appointment. The source data only
// carries an SMS-received flag, so there are two known values.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelNoSMS Channel = "No SMS"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelNoSMS:
		return true
	}
	return false
}

const (
	// DefaultAverageValue is the monetary proxy applied to every appointment.
	DefaultAverageValue = 150.0
	// DefaultSpecialty is the fixed specialty proxy; the dataset has none.
	DefaultSpecialty = "General"
	// SeniorAge is the age at which Age60Plus is set.
	SeniorAge = 60
)

// Record is one scheduled visit in canonical form.
type Record struct {
	ID              int64     `json:"id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	AppointmentAt   time.Time `json:"appointment_at"`
	Age             int       `json:"age"`
	Age60Plus       bool      `json:"age_60_plus"`
	Channel         Channel   `json:"channel"`
	Area            string    `json:"area"`
	Specialty       string    `json:"specialty"`
	LeadTimeMinutes int       `json:"lead_time_minutes"`
	LeadTimeDays    int       `json:"lead_time_days"`
	Scheduled       bool      `json:"scheduled"`
	Attended        bool      `json:"attended"`
	NoShow          bool      `json:"no_show"`
	AverageValue    float64   `json:"average_value"`
}

// Age60PlusFlag returns the senior flag as 0 or 1.
func (r Record) Age60PlusFlag() float64 {
	if r.Age60Plus {
		return 1
	}
	return 0
}

// AgeGroup labels the record as "60+" or "<60".
func (r Record) AgeGroup() string {
	if r.Age60Plus {
		return "60+"
	}
	return "<60"
}

// Dataset is the output of the loader.
type Dataset struct {
	Path        string   `json:"path"`
	Records     []Record `json:"-"`
	InvalidRows int      `json:"invalid_rows"`
}

// ScheduledOnly keeps the rows flagged as scheduled.
func ScheduledOnly(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if record.Scheduled {
			out = append(out, record)
		}
	}
	return out
}

// Areas returns the distinct areas in ascending order.
func Areas(records []Record) []string {
	seen := map[string]struct{}{}
	for _, record := range records {
		seen[record.Area] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for area := range seen {
		result = append(result, area)
	}
	sort.Strings(result)
	return result
}

// Channels returns the distinct channels in ascending order.
func Channels(records []Record) []Channel {
	seen := map[Channel]struct{}{}
	for _, record := range records {
		seen[record.Channel] = struct{}{}
	}
	result := make([]Channel, 0, len(seen))
	for channel := range seen {
		result = append(result, channel)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Fingerprint hashes every field that feeds training and aggregation. Two
// tables with the same fingerprint produce the same model.
func Fingerprint(records []Record) string {
	h := sha256.New()
	buf := make([]byte, 8)
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}
	writeBool := func(v bool) {
		if v {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	writeInt(int64(len(records)))
	for _, r := range records {
		writeInt(r.ID)
		writeInt(int64(r.Age))
		writeBool(r.Age60Plus)
		h.Write([]byte(r.Channel))
		h.Write([]byte{0})
		h.Write([]byte(r.Area))
		h.Write([]byte{0})
		writeInt(int64(r.LeadTimeMinutes))
		writeInt(int64(r.LeadTimeDays))
		writeBool(r.Scheduled)
		writeBool(r.NoShow)
	}
	return hex.EncodeToString(h.Sum(nil))
}
