package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/action"
	"noshow-risk-audit/internal/api"
	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/config"
	"noshow-risk-audit/internal/model"
	"noshow-risk-audit/internal/report"
	"noshow-risk-audit/internal/store"
)

func runReport(cfg config.Config, log *logrus.Logger, args []string) error {
	defaults := report.DefaultOptions()
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	inputPath := fs.String("input", "", "Path to appointments CSV (default NOSHOW_DATA_PATH or data/raw/noshowappointments.csv)")
	moderate := fs.Float64("moderate", defaults.Thresholds.Moderate, "Moderate risk threshold (0.30-0.90)")
	high := fs.Float64("high", defaults.Thresholds.High, "High risk threshold (0.40-0.95)")
	topN := fs.Int("top", defaults.TopClusters, "Top N clusters and areas to show")
	preview := fs.Int("preview", defaults.QueuePreview, "Queue rows to show")
	reduction := fs.Float64("reduction", defaults.Reduction, "No-show reduction for the what-if estimate (0-1)")
	areas := fs.String("area", "", "Comma separated areas to keep")
	channel := fs.String("channel", "", "Channel to keep (SMS or \"No SMS\")")
	from := fs.String("from", "", "First scheduling date (YYYY-MM-DD)")
	to := fs.String("to", "", "Last scheduling date (YYYY-MM-DD)")
	jsonOut := fs.String("json", "", "Optional JSON output path")
	queueOut := fs.String("queue", "", "Optional CSV output for the action queue")
	dbEnabled := fs.Bool("db", false, "Store report in Postgres (requires NOSHOW_DB_URL or DATABASE_URL)")
	dbSchema := fs.String("db-schema", cfg.DBSchema, "Postgres schema for audit tables")
	dbTag := fs.String("db-tag", "", "Optional label for this audit run")
	initDB := fs.Bool("init-db", false, "Initialize database schema and seed data if empty")
	fs.Parse(args)

	if *topN < 0 {
		return errors.New("--top must not be negative")
	}
	filter, err := buildFilter(*areas, *channel, *from, *to)
	if err != nil {
		return err
	}

	dataset, err := loadDataset(cfg, *inputPath, log)
	if err != nil {
		return err
	}

	opts := defaults
	opts.Thresholds = action.NewThresholds(*moderate, *high)
	opts.TopClusters = *topN
	opts.TopAreas = *topN
	opts.QueuePreview = *preview
	opts.Reduction = *reduction

	builder := report.NewBuilder(model.NewTrainer(model.DefaultTrainOptions(), log), log)
	rep, err := builder.Build(dataset, filter, opts)
	if err != nil {
		return err
	}

	report.Print(os.Stdout, rep)

	if *jsonOut != "" {
		if err := report.WriteJSON(rep, *jsonOut); err != nil {
			return err
		}
		fmt.Printf("\nJSON report saved to %s\n", *jsonOut)
	}

	if *queueOut != "" {
		if rep.Act.ModelStatus != report.StatusOK {
			return fmt.Errorf("action queue not available: %s", rep.Predict.Error)
		}
		if err := writeQueueFile(*queueOut, rep.Queue); err != nil {
			return err
		}
		fmt.Printf("Action queue saved to %s\n", *queueOut)
	}

	if *dbEnabled || *initDB {
		db, err := store.Open(context.Background(), store.Config{URL: cfg.DBURL, Schema: *dbSchema, Tag: *dbTag}, log)
		if err != nil {
			return err
		}
		defer db.Close()

		seeded := false
		if *initDB {
			runID, err := db.SeedRun(context.Background(), rep)
			if err != nil {
				return err
			}
			if runID != "" {
				seeded = true
				fmt.Printf("\nSeeded Postgres with initial audit run (run_id=%s)\n", runID)
			}
		}
		if *dbEnabled {
			if seeded {
				fmt.Println("Skipped duplicate insert; current report already used for seed.")
			} else {
				runID, err := db.SaveRun(context.Background(), rep)
				if err != nil {
					return err
				}
				fmt.Printf("\nStored audit run in Postgres (run_id=%s)\n", runID)
			}
		}
	}
	return nil
}

func buildFilter(areas, channel, from, to string) (appointments.Filter, error) {
	var filter appointments.Filter
	for _, area := range strings.Split(areas, ",") {
		if area = strings.TrimSpace(area); area != "" {
			filter.Areas = append(filter.Areas, area)
		}
	}
	if channel = strings.TrimSpace(channel); channel != "" {
		c := appointments.Channel(channel)
		if !c.IsValid() {
			return filter, fmt.Errorf("invalid --channel value: %s", channel)
		}
		filter.Channels = []appointments.Channel{c}
	}
	var err error
	if from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			return filter, fmt.Errorf("invalid --from date: %w", err)
		}
	}
	if to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			return filter, fmt.Errorf("invalid --to date: %w", err)
		}
	}
	return filter, nil
}

func writeQueueFile(path string, queue []action.Item) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return action.WriteQueueCSV(file, queue)
}

func runTrain(cfg config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	inputPath := fs.String("input", "", "Path to the raw appointments CSV")
	outPath := fs.String("out", cfg.ModelPath, "Where to save the model artifact")
	fs.Parse(args)

	path := *inputPath
	if path == "" {
		resolved, err := cfg.ResolveDataPath()
		if err != nil {
			return err
		}
		path = resolved
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	df, err := appointments.ReadFrame(file)
	if err != nil {
		return err
	}
	data, err := model.PrepareBaseline(df)
	if err != nil {
		return err
	}
	started := time.Now()
	result, err := model.TrainBaseline(data, model.DefaultFitConfig)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"train":   result.NTrain,
		"test":    result.NTest,
		"auc":     fmt.Sprintf("%.4f", result.AUC),
		"elapsed": time.Since(started).Round(time.Millisecond).String(),
	}).Info("baseline model trained")

	fmt.Printf("ROC AUC: %.3f\n\n", result.AUC)
	printClassification(result.Report)

	artifact := model.Artifact{
		Variant:   "baseline",
		TrainedAt: time.Now().UTC(),
		AUC:       result.AUC,
		NTrain:    result.NTrain,
		Report:    &result.Report,
		Pipeline:  result.Pipeline,
	}
	if err := model.SaveArtifact(*outPath, artifact); err != nil {
		return err
	}
	fmt.Printf("\nModel saved to %s\n", *outPath)
	return nil
}

func printClassification(r model.ClassificationReport) {
	fmt.Printf("%-10s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, class := range r.Classes {
		fmt.Printf("%-10s %10.2f %10.2f %10.2f %10d\n", class.Label, class.Precision, class.Recall, class.F1, class.Support)
	}
	fmt.Printf("\n%-10s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
}

func runScore(cfg config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	inputPath := fs.String("input", "", "CSV to score")
	outPath := fs.String("out", "", "Output CSV (default stdout)")
	modelPath := fs.String("model", cfg.ModelPath, "Model artifact path")
	cutoff := fs.Float64("cutoff", model.DefaultCutoff, "Probability at which a row is predicted no-show")
	fs.Parse(args)

	if *inputPath == "" {
		return errors.New("--input is required")
	}
	artifact, err := model.LoadArtifact(*modelPath)
	if err != nil {
		return err
	}
	in, err := os.Open(*inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out := os.Stdout
	if *outPath != "" {
		file, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	result, err := model.ScoreCSV(in, out, artifact.Pipeline, *cutoff)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"rows":      result.Rows,
		"predicted": result.Predicted,
		"model":     *modelPath,
	}).Info("batch scored")
	return nil
}

func runServe(cfg config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	inputPath := fs.String("input", "", "Path to appointments CSV")
	port := fs.String("port", cfg.Port, "Listen port")
	modelPath := fs.String("model", cfg.ModelPath, "Model artifact for /api/score and /api/predict")
	requireModel := fs.Bool("require-model", false, "Refuse to start without the model artifact")
	fs.Parse(args)

	dataset, err := loadDataset(cfg, *inputPath, log)
	if err != nil {
		return err
	}

	var pipeline *model.Pipeline
	artifact, err := model.LoadArtifact(*modelPath)
	switch {
	case err == nil:
		pipeline = artifact.Pipeline
	case errors.Is(err, model.ErrArtifactMissing) && !*requireModel:
		log.WithField("model", *modelPath).Warn("no model artifact; batch scoring disabled until `noshow train` is run")
	default:
		return err
	}

	trainer := model.NewTrainer(model.DefaultTrainOptions(), log)
	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: api.NewServer(dataset, trainer, pipeline, log).Router(),
	}

	go func() {
		log.WithField("port", *port).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("api stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down api")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
