package appointments

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleCSV = "PatientId,AppointmentID,Gender,ScheduledDay,AppointmentDay,Age,Neighbourhood,Scholarship,Hipertension,Diabetes,Alcoholism,Handcap,SMS_received,No-show\n" +
	"29872499824296,5642903,F,2016-04-29T18:38:08Z,2016-04-29T00:00:00Z,62,JARDIM DA PENHA,0,1,0,0,0,0,No\n" +
	"558997776694438,5642503,M,2016-04-27T08:00:00Z,2016-04-29T00:00:00Z,56,JARDIM DA PENHA,0,0,0,0,0,1,Yes\n" +
	"4262962299951,5642549,F,not-a-date,2016-04-29T00:00:00Z,-1,MATA DA PRAIA,0,0,0,0,0,0, yes \n" +
	"867951213174,abc,F,2016-04-29T16:19:04Z,2016-04-29T00:00:00Z,8,PONTAL DE CAMBURI,0,0,0,0,0,0,No\n"

func writeTempCSV(t *testing.T, data string) string {
	t.Helper()
	file, err := os.CreateTemp(t.TempDir(), "appointments-*.csv")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := file.WriteString(data); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	return file.Name()
}

func TestLoadDerivesCanonicalFields(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)

	dataset, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if dataset.InvalidRows != 1 {
		t.Fatalf("expected 1 invalid row, got %d", dataset.InvalidRows)
	}
	if len(dataset.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(dataset.Records))
	}

	first := dataset.Records[0]
	if first.ID != 5642903 || !first.Age60Plus || first.Channel != ChannelNoSMS {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.LeadTimeMinutes != 0 || first.LeadTimeDays != 0 {
		t.Fatalf("negative lead time should clamp to 0, got %d min / %d days", first.LeadTimeMinutes, first.LeadTimeDays)
	}
	if first.NoShow || !first.Attended {
		t.Fatalf("expected attended record")
	}
	if first.AverageValue != DefaultAverageValue || first.Specialty != DefaultSpecialty {
		t.Fatalf("unexpected proxies: %+v", first)
	}

	second := dataset.Records[1]
	if second.Channel != ChannelSMS || !second.NoShow || second.Attended {
		t.Fatalf("unexpected second record: %+v", second)
	}
	if second.LeadTimeMinutes != 2*24*60-8*60 || second.LeadTimeDays != 2 {
		t.Fatalf("unexpected lead time: %d min / %d days", second.LeadTimeMinutes, second.LeadTimeDays)
	}

	third := dataset.Records[2]
	if !third.ScheduledAt.IsZero() {
		t.Fatalf("malformed date should be null")
	}
	if third.LeadTimeMinutes != 0 || third.Age != 0 || !third.NoShow {
		t.Fatalf("unexpected third record: %+v", third)
	}
}

func TestAttendedPlusNoShowEqualsScheduled(t *testing.T) {
	dataset, err := Parse(strings.NewReader(sampleCSV), LoadOptions{AverageValue: 90})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	scheduled, attended, missed := 0, 0, 0
	for _, record := range dataset.Records {
		if record.Scheduled {
			scheduled++
		}
		if record.Attended {
			attended++
		}
		if record.NoShow {
			missed++
		}
		if record.AverageValue != 90 {
			t.Fatalf("expected configured value 90, got %.1f", record.AverageValue)
		}
	}
	if attended+missed != scheduled {
		t.Fatalf("attended %d + no-show %d != scheduled %d", attended, missed, scheduled)
	}
}

func TestParseMissingTargetColumn(t *testing.T) {
	data := "AppointmentID,ScheduledDay,AppointmentDay,Age,SMS_received,Neighbourhood\n1,2016-04-29,2016-04-30,30,0,CENTRO\n"
	_, err := Parse(strings.NewReader(data), LoadOptions{})
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != ColNoShow {
		t.Fatalf("expected No-show missing, got %v", missing.Missing)
	}
}

func TestParseTrimsHeaderWhitespace(t *testing.T) {
	data := " AppointmentID ,ScheduledDay,AppointmentDay,Age,SMS_received,Neighbourhood,No-show \n1,2016-04-29,2016-04-30,30,1,CENTRO,No\n"
	dataset, err := Parse(strings.NewReader(data), LoadOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(dataset.Records) != 1 || dataset.Records[0].LeadTimeDays != 1 {
		t.Fatalf("unexpected records: %+v", dataset.Records)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	dataset, err := Parse(strings.NewReader(strings.SplitN(sampleCSV, "\n", 2)[0]+"\n"), LoadOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(dataset.Records) != 0 || dataset.InvalidRows != 0 {
		t.Fatalf("expected empty dataset, got %+v", dataset)
	}

	_, err = Parse(strings.NewReader("AppointmentID,ScheduledDay,AppointmentDay,Age,SMS_received,Neighbourhood\n"), LoadOptions{})
	var missing *MissingColumnsError
	if !errors.As(err, &missing) || len(missing.Missing) != 1 || missing.Missing[0] != ColNoShow {
		t.Fatalf("expected No-show missing, got %v", err)
	}

	if _, err := Parse(strings.NewReader(""), LoadOptions{}); !errors.Is(err, ErrEmptyCSV) {
		t.Fatalf("expected ErrEmptyCSV, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), LoadOptions{})
	if !errors.Is(err, ErrNoDataFile) {
		t.Fatalf("expected ErrNoDataFile, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	second := writeTempCSV(t, sampleCSV)

	got, err := ResolvePath(filepath.Join(dir, "missing.csv"), second)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != second {
		t.Fatalf("expected %s, got %s", second, got)
	}

	if _, err := ResolvePath(filepath.Join(dir, "missing.csv")); !errors.Is(err, ErrNoDataFile) {
		t.Fatalf("expected ErrNoDataFile, got %v", err)
	}
}

func TestLeadTimeRoundsHalfToEven(t *testing.T) {
	sched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// 2.5 days rounds to 2, 3.5 days rounds to 4.
	if _, days := LeadTime(sched, sched.Add(60*time.Hour)); days != 2 {
		t.Fatalf("expected 2 days, got %d", days)
	}
	if _, days := LeadTime(sched, sched.Add(84*time.Hour)); days != 4 {
		t.Fatalf("expected 4 days, got %d", days)
	}
	if minutes, days := LeadTime(time.Time{}, sched); minutes != 0 || days != 0 {
		t.Fatalf("null timestamp should yield zero lead time")
	}
}

func TestFilterApply(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: 1, ScheduledAt: base, Channel: ChannelSMS, Area: "CENTRO", Age: 30},
		{ID: 2, ScheduledAt: base.AddDate(0, 0, 5), Channel: ChannelNoSMS, Area: "CENTRO", Age: 70},
		{ID: 3, ScheduledAt: base.AddDate(0, 0, 10), Channel: ChannelSMS, Area: "ILHA", Age: 45},
		{ID: 4, Channel: ChannelSMS, Area: "ILHA", Age: 45},
	}

	if got := (Filter{}).Apply(records); len(got) != 4 {
		t.Fatalf("zero filter should keep all rows, got %d", len(got))
	}

	minAge := 40
	got := Filter{Channels: []Channel{ChannelSMS}, MinAge: &minAge}.Apply(records)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 4 {
		t.Fatalf("unexpected channel/age filter result: %+v", got)
	}

	got = Filter{From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 10)}.Apply(records)
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected date filter result: %+v", got)
	}

	got = Filter{Areas: []string{"ILHA"}}.Apply(records)
	if len(got) != 2 {
		t.Fatalf("expected 2 ILHA rows, got %d", len(got))
	}
}

func TestFingerprintStable(t *testing.T) {
	records := []Record{{ID: 1, Area: "A", Channel: ChannelSMS, Scheduled: true}}
	if Fingerprint(records) != Fingerprint(append([]Record{}, records...)) {
		t.Fatalf("fingerprint should be deterministic")
	}
	changed := []Record{{ID: 1, Area: "A", Channel: ChannelSMS, Scheduled: true, NoShow: true}}
	if Fingerprint(records) == Fingerprint(changed) {
		t.Fatalf("fingerprint should change with the target")
	}
}
