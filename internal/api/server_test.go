package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDataset(n int) appointments.Dataset {
	rng := rand.New(rand.NewSource(21))
	areas := []string{"CENTRO", "ILHA", "HOT"}
	start := time.Date(2016, 4, 1, 9, 0, 0, 0, time.UTC)
	records := make([]appointments.Record, n)
	for i := range records {
		area := areas[i%len(areas)]
		days := rng.Intn(25)
		age := 10 + rng.Intn(80)
		channel := appointments.ChannelSMS
		if rng.Intn(2) == 0 {
			channel = appointments.ChannelNoSMS
		}
		p := 0.12 + 0.01*float64(days)
		if area == "HOT" {
			p += 0.2
		}
		missed := rng.Float64() < p
		scheduled := start.AddDate(0, 0, i%30)
		records[i] = appointments.Record{
			ID:              int64(1000 + i),
			ScheduledAt:     scheduled,
			AppointmentAt:   scheduled.AddDate(0, 0, days),
			Age:             age,
			Age60Plus:       age >= appointments.SeniorAge,
			Channel:         channel,
			Area:            area,
			Specialty:       appointments.DefaultSpecialty,
			LeadTimeDays:    days,
			LeadTimeMinutes: days * 1440,
			Scheduled:       true,
			Attended:        !missed,
			NoShow:          missed,
			AverageValue:    appointments.DefaultAverageValue,
		}
	}
	return appointments.Dataset{Records: records}
}

func testPipeline() *model.Pipeline {
	return &model.Pipeline{
		Categorical:  []model.CategoricalColumn{{Name: "Gender", Levels: []string{"F", "M"}}},
		Numeric:      []string{"Age"},
		Intercept:    -2,
		Coefficients: []float64{0, 1, 0.02},
	}
}

func newTestServer(n int, pipeline *model.Pipeline) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	trainer := model.NewTrainer(model.DefaultTrainOptions(), log)
	return NewServer(testDataset(n), trainer, pipeline, log).Router()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthAndOverview(t *testing.T) {
	h := newTestServer(900, nil)

	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body["rows"].(float64) != 900 || body["model_loaded"].(bool) {
		t.Fatalf("unexpected health body: %v", body)
	}

	rec = get(t, h, "/api/overview?area=HOT")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := decode(t, rec)["summary"].(map[string]any)
	if summary["scheduled"].(float64) != 300 {
		t.Fatalf("expected 300 HOT rows, got %v", summary["scheduled"])
	}
}

func TestRateEndpoints(t *testing.T) {
	h := newTestServer(900, nil)

	rec := get(t, h, "/api/no-show?by=channel")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if groups := decode(t, rec)["groups"].([]any); len(groups) != 2 {
		t.Fatalf("expected 2 channel groups, got %d", len(groups))
	}

	rec = get(t, h, "/api/no-show")
	first := decode(t, rec)["groups"].([]any)[0].(map[string]any)
	if first["key"] != "HOT" {
		t.Fatalf("expected HOT first, got %v", first["key"])
	}

	if rec := get(t, h, "/api/attendance?by=weather"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown dimension, got %d", rec.Code)
	}

	rec = get(t, h, "/api/lead-time")
	if buckets := decode(t, rec)["buckets"].([]any); len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}

	if rec := get(t, h, "/api/overview?min_age=old"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", rec.Code)
	}
	if rec := get(t, h, "/api/overview?channel=Fax"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown channel, got %d", rec.Code)
	}
}

func TestClustersAndWhatIf(t *testing.T) {
	h := newTestServer(900, nil)

	rec := get(t, h, "/api/clusters?top=3")
	if clusters := decode(t, rec)["clusters"].([]any); len(clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(clusters))
	}

	rec = get(t, h, "/api/what-if?reduction=2")
	body := decode(t, rec)
	if body["reduction"].(float64) != 1 {
		t.Fatalf("expected reduction clamped to 1, got %v", body["reduction"])
	}
	if body["recovered_value"].(float64) != 900*150 {
		t.Fatalf("unexpected recovered value %v", body["recovered_value"])
	}
}

func TestQueueEndpoints(t *testing.T) {
	h := newTestServer(1800, nil)

	rec := get(t, h, "/api/queue?moderate=0.8&high=0.5&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	th := body["thresholds"].(map[string]any)
	if th["high"].(float64) < th["moderate"].(float64) {
		t.Fatalf("thresholds not clamped: %v", th)
	}
	if items := body["items"].([]any); len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	if body["total"].(float64) != 1800 {
		t.Fatalf("expected 1800 queued rows, got %v", body["total"])
	}

	rec = get(t, h, "/api/queue.csv?area=ILHA")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 601 || !strings.HasPrefix(lines[0], "ID,Age,Channel,Area") {
		t.Fatalf("unexpected csv: %d lines, header %q", len(lines), lines[0])
	}

	if rec := get(t, h, "/api/model"); rec.Code != http.StatusOK {
		t.Fatalf("expected model info, got %d", rec.Code)
	}
}

func TestModelEndpointsNeedData(t *testing.T) {
	h := newTestServer(60, nil)
	for _, target := range []string{"/api/model", "/api/queue", "/api/queue.csv"} {
		if rec := get(t, h, target); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", target, rec.Code)
		}
	}

	h = newTestServer(900, nil)
	if rec := get(t, h, "/api/queue"); rec.Code != http.StatusOK {
		t.Fatalf("expected the full table to train, got %d", rec.Code)
	}
	for _, target := range []string{"/api/model?area=ILHA", "/api/queue?area=ILHA", "/api/queue.csv?area=HOT&min_age=60"} {
		if rec := get(t, h, target); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422 for a small filtered slice, got %d", target, rec.Code)
		}
	}
}

func TestFilters(t *testing.T) {
	rec := get(t, newTestServer(90, nil), "/api/filters")
	body := decode(t, rec)
	if areas := body["areas"].([]any); len(areas) != 3 || areas[0] != "CENTRO" {
		t.Fatalf("unexpected areas: %v", areas)
	}
	if body["from"] != "2016-04-01" || body["to"] != "2016-04-30" {
		t.Fatalf("unexpected date range: %v - %v", body["from"], body["to"])
	}
	if body["min_age"].(float64) > body["max_age"].(float64) {
		t.Fatalf("age range inverted")
	}
}

func upload(t *testing.T, h http.Handler, data string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "batch.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte(data))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/score", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScoreUpload(t *testing.T) {
	h := newTestServer(30, testPipeline())

	rec := upload(t, h, "Gender,Age\nM,50\nF,0\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Scored-Rows") != "2" || rec.Header().Get("X-Predicted-No-Show") != "1" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}
	header := strings.SplitN(rec.Body.String(), "\n", 2)[0]
	if header != "Gender,Age,proba_noshow,pred_noshow_50" {
		t.Fatalf("unexpected header %q", header)
	}

	rec = upload(t, h, "Gender\nM\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	missing := decode(t, rec)["missing_columns"].([]any)
	if len(missing) != 1 || missing[0] != "Age" {
		t.Fatalf("unexpected missing columns: %v", missing)
	}

	rec = upload(t, h, "Gender\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for header-only upload, got %d", rec.Code)
	}
	if missing := decode(t, rec)["missing_columns"].([]any); len(missing) != 1 || missing[0] != "Age" {
		t.Fatalf("unexpected missing columns: %v", missing)
	}

	for _, data := range []string{"Gender,Age\nF,abc\n", "Gender,Age\n", ""} {
		if rec := upload(t, h, data); rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d: %s", data, rec.Code, rec.Body.String())
		}
	}

	if rec := upload(t, newTestServer(30, nil), "Gender,Age\nM,50\n"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without a model, got %d", rec.Code)
	}
}

func TestPredictSingleRow(t *testing.T) {
	h := newTestServer(30, testPipeline())

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"Gender": "M", "Age": 50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["probability"].(float64) != 0.5 || body["band"] != "high" || body["prediction"] != true {
		t.Fatalf("unexpected prediction: %v", body)
	}

	if rec := post(`{"Gender": "M"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing column, got %d", rec.Code)
	}
	if rec := post(`{"Gender": "M", "Age": "old"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad number, got %d", rec.Code)
	}
}
