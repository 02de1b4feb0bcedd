package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/config"
)

const usage = `Usage: noshow <command> [flags]

Commands:
  report   Print the no-show audit (default)
  train    Train the baseline model on the raw export and save it
  score    Score a CSV with the saved model
  serve    Start the HTTP API

Run "noshow <command> -h" for the flags of a command.
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(fmt.Errorf("load .env: %w", err))
	}
	log := config.NewLogger(cfg.LogLevel)

	args := os.Args[1:]
	command := "report"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "report":
		err = runReport(cfg, log, args)
	case "train":
		err = runTrain(cfg, log, args)
	case "score":
		err = runScore(cfg, log, args)
	case "serve":
		err = runServe(cfg, log, args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		exitWithError(err)
	}
}

func loadDataset(cfg config.Config, input string, log logrus.FieldLogger) (appointments.Dataset, error) {
	path := strings.TrimSpace(input)
	if path == "" {
		resolved, err := cfg.ResolveDataPath()
		if err != nil {
			return appointments.Dataset{}, err
		}
		path = resolved
	}
	dataset, err := appointments.Load(path, appointments.LoadOptions{AverageValue: cfg.AverageValue})
	if err != nil {
		return appointments.Dataset{}, err
	}
	entry := log.WithFields(logrus.Fields{
		"path": path,
		"rows": len(dataset.Records),
	})
	if dataset.InvalidRows > 0 {
		entry = entry.WithField("invalid_rows", dataset.InvalidRows)
	}
	entry.Info("appointments loaded")
	return dataset, nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	var missing *appointments.MissingColumnsError
	if errors.As(err, &missing) {
		fmt.Fprintln(os.Stderr, "Expected columns:", strings.Join(appointments.RequiredColumns, ", "))
	}
	os.Exit(1)
}
