package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultArtifactPath is where the baseline trainer writes its model.
var DefaultArtifactPath = filepath.Join("models", "model.json")

var ErrArtifactMissing = errors.New("model artifact not found")

const artifactVersion = 1

// Artifact is the persisted form of a trained pipeline.
type Artifact struct {
	Version   int                   `json:"version"`
	Variant   string                `json:"variant"`
	TrainedAt time.Time             `json:"trained_at"`
	AUC       float64               `json:"auc"`
	NTrain    int                   `json:"n_train"`
	Report    *ClassificationReport `json:"report,omitempty"`
	Pipeline  *Pipeline             `json:"pipeline"`
}

// SaveArtifact writes a as indented JSON, creating parent directories.
func SaveArtifact(path string, a Artifact) error {
	if a.Pipeline == nil {
		return errors.New("artifact has no pipeline")
	}
	a.Version = artifactVersion
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadArtifact reads and validates an artifact. A missing file yields
// ErrArtifactMissing.
func LoadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return Artifact{}, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Version != artifactVersion {
		return Artifact{}, fmt.Errorf("unsupported model artifact version %d", a.Version)
	}
	if a.Pipeline == nil {
		return Artifact{}, errors.New("model artifact has no pipeline")
	}
	if err := a.Pipeline.init(); err != nil {
		return Artifact{}, fmt.Errorf("model artifact: %w", err)
	}
	return a, nil
}
