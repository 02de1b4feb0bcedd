package api

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"noshow-risk-audit/internal/action"
	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/kpi"
	"noshow-risk-audit/internal/model"
)

const (
	defaultQueueLimit = 50
	defaultTopN       = 10
	defaultReduction  = 0.10
)

func (s *Server) filtered(c *gin.Context) ([]appointments.Record, bool) {
	filter, err := filterFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return nil, false
	}
	return filter.Apply(s.dataset.Records), true
}

func (s *Server) overview(c *gin.Context) {
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": kpi.Overall(records),
		"funnel":  kpi.Funnel(records),
		"loss":    kpi.Loss(records),
	})
}

func (s *Server) noShowBy(c *gin.Context) {
	s.rateBy(c, kpi.RateBy)
}

func (s *Server) attendanceBy(c *gin.Context) {
	s.rateBy(c, kpi.AttendanceBy)
}

func (s *Server) rateBy(c *gin.Context, rate func([]appointments.Record, kpi.Dimension) []kpi.GroupRate) {
	dim, err := kpi.DimensionByName(c.DefaultQuery("by", kpi.ByArea.Name))
	if err != nil {
		badRequest(c, err)
		return
	}
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"by": dim.Name, "groups": rate(records, dim)})
}

func (s *Server) leadTime(c *gin.Context) {
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": kpi.LeadTimeImpact(records)})
}

func (s *Server) clusters(c *gin.Context) {
	top, err := queryInt(c, "top", defaultTopN)
	if err != nil {
		badRequest(c, err)
		return
	}
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	clusters := kpi.Clusters(records, s.weights, top)
	c.JSON(http.StatusOK, gin.H{
		"clusters":         clusters,
		"loss_share":       kpi.LossShare(clusters),
		"priority_weights": s.weights,
	})
}

func (s *Server) modelInfo(c *gin.Context) {
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	trained, err := s.trainer.Train(records)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auc":                trained.AUC,
		"n_train":            trained.NTrain,
		"features":           trained.Features,
		"feature_importance": trained.Importance,
		"trained_at":         trained.TrainedAt,
	})
}

// scoredQueue trains on the filtered rows and queues them.
func (s *Server) scoredQueue(c *gin.Context) ([]action.Item, action.Thresholds, bool) {
	moderate, err := queryFloat(c, "moderate", action.DefaultThresholds.Moderate)
	if err != nil {
		badRequest(c, err)
		return nil, action.Thresholds{}, false
	}
	high, err := queryFloat(c, "high", action.DefaultThresholds.High)
	if err != nil {
		badRequest(c, err)
		return nil, action.Thresholds{}, false
	}
	th := action.NewThresholds(moderate, high)

	records, ok := s.filtered(c)
	if !ok {
		return nil, th, false
	}
	trained, err := s.trainer.Train(records)
	if err != nil {
		s.fail(c, err)
		return nil, th, false
	}
	scored, err := model.Score(records, trained)
	if err != nil {
		s.fail(c, err)
		return nil, th, false
	}
	return action.BuildQueue(scored, th), th, true
}

func (s *Server) queue(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultQueueLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	queue, th, ok := s.scoredQueue(c)
	if !ok {
		return
	}
	items := queue
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"thresholds": th,
		"summary":    action.Summarize(queue),
		"groups":     action.GroupActions(queue),
		"total":      len(queue),
		"items":      items,
	})
}

func (s *Server) queueCSV(c *gin.Context) {
	queue, _, ok := s.scoredQueue(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := action.WriteQueueCSV(&buf, queue); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="action_queue.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) whatIf(c *gin.Context) {
	reduction, err := queryFloat(c, "reduction", defaultReduction)
	if err != nil {
		badRequest(c, err)
		return
	}
	if math.IsNaN(reduction) {
		badRequest(c, errors.New("invalid reduction"))
		return
	}
	reduction = math.Min(math.Max(reduction, 0), 1)
	records, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loss":            kpi.Loss(records),
		"reduction":       reduction,
		"recovered_value": kpi.SimulateReduction(records, reduction),
	})
}

func (s *Server) filters(c *gin.Context) {
	records := s.dataset.Records
	response := gin.H{
		"areas":    appointments.Areas(records),
		"channels": appointments.Channels(records),
	}
	if len(records) > 0 {
		minAge, maxAge := records[0].Age, records[0].Age
		var first, last string
		for _, record := range records {
			minAge = min(minAge, record.Age)
			maxAge = max(maxAge, record.Age)
			if record.ScheduledAt.IsZero() {
				continue
			}
			day := record.ScheduledAt.Format("2006-01-02")
			if first == "" || day < first {
				first = day
			}
			if last == "" || day > last {
				last = day
			}
		}
		response["min_age"] = minAge
		response["max_age"] = maxAge
		response["from"] = first
		response["to"] = last
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) scoreBatch(c *gin.Context) {
	if s.pipeline == nil {
		s.fail(c, fmt.Errorf("%w: no model artifact loaded", model.ErrNotAvailable))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, errors.New(`multipart field "file" is required`))
		return
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	result, err := model.ScoreCSV(file, &buf, s.pipeline, model.DefaultCutoff)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("X-Scored-Rows", strconv.Itoa(result.Rows))
	c.Header("X-Predicted-No-Show", strconv.Itoa(result.Predicted))
	c.Header("Content-Disposition", `attachment; filename="scored.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) predict(c *gin.Context) {
	if s.pipeline == nil {
		s.fail(c, fmt.Errorf("%w: no model artifact loaded", model.ErrNotAvailable))
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	fields := make(map[string]string, len(body))
	for key, value := range body {
		fields[key] = fieldString(value)
	}
	prob, err := model.PredictOne(s.pipeline, fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"probability": prob,
		"band":        model.Band(prob),
		"prediction":  prob >= model.DefaultCutoff,
	})
}

func fieldString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
