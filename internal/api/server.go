// Package api serves the dashboard views as JSON over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/kpi"
	"noshow-risk-audit/internal/model"
)

// Server answers requests over one immutable dataset. Views are recomputed
// per request; the model comes from the trainer's cache.
type Server struct {
	dataset  appointments.Dataset
	trainer  *model.Trainer
	pipeline *model.Pipeline
	weights  kpi.PriorityWeights
	log      logrus.FieldLogger
}

// NewServer wires a server. pipeline is the batch-scoring artifact and may be
// nil, in which case /api/score and /api/predict answer 422.
func NewServer(dataset appointments.Dataset, trainer *model.Trainer, pipeline *model.Pipeline, log logrus.FieldLogger) *Server {
	return &Server{
		dataset:  dataset,
		trainer:  trainer,
		pipeline: pipeline,
		weights:  kpi.DefaultPriorityWeights,
		log:      log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/overview", s.overview)
		api.GET("/no-show", s.noShowBy)
		api.GET("/attendance", s.attendanceBy)
		api.GET("/lead-time", s.leadTime)
		api.GET("/clusters", s.clusters)
		api.GET("/model", s.modelInfo)
		api.GET("/queue", s.queue)
		api.GET("/queue.csv", s.queueCSV)
		api.GET("/what-if", s.whatIf)
		api.GET("/filters", s.filters)
		api.POST("/score", s.scoreBatch)
		api.POST("/predict", s.predict)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(started).String(),
		}).Info("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"rows":         len(s.dataset.Records),
		"model_loaded": s.pipeline != nil,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	var missing *appointments.MissingColumnsError
	var invalid *model.InvalidInputError
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "missing_columns": missing.Missing})
	case errors.As(err, &invalid):
		badRequest(c, err)
	case errors.Is(err, model.ErrInsufficientData), errors.Is(err, model.ErrNotAvailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
