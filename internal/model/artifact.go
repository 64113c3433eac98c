// Package model defines the deployable model artifact: a fitted preprocessing
// transform paired with a fitted predictor, plus the metrics used to score it.
package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/modelgate/internal/dataset"
)

// Transformer converts raw feature records into a numeric matrix.
type Transformer interface {
	Transform(x *dataset.Dataset) ([][]float64, error)
}

// Predictor maps a numeric matrix to class labels.
type Predictor interface {
	Predict(x [][]float64) ([]int, error)
}

// Metadata describes how an artifact was produced.
type Metadata struct {
	Name      string
	Target    string
	Features  []string
	F1Score   float64
	TrainedAt time.Time
}

// Artifact owns exactly one transform and one predictor.
type Artifact struct {
	Transform Transformer
	Predictor Predictor
	Metadata  Metadata
}

// Predict applies the transform, then the predictor.
func (a *Artifact) Predict(x *dataset.Dataset) ([]int, error) {
	if a == nil || a.Transform == nil || a.Predictor == nil {
		return nil, fmt.Errorf("model artifact is incomplete")
	}
	features, err := a.Transform.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("transform features: %w", err)
	}
	labels, err := a.Predictor.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return labels, nil
}

// String names the predictor type.
func (a *Artifact) String() string {
	if a == nil || a.Predictor == nil {
		return "<nil>()"
	}
	return fmt.Sprintf("%T()", a.Predictor)
}

func init() {
	gob.Register(&ColumnTransformer{})
	gob.Register(&LogisticRegression{})
}

// Encode serializes the artifact.
func Encode(a *Artifact) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("model artifact is required")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode model artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes an artifact produced by Encode.
func Decode(data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode model artifact: empty payload")
	}
	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Transform == nil || a.Predictor == nil {
		return nil, fmt.Errorf("decode model artifact: missing transform or predictor")
	}
	return &a, nil
}

// SaveFile encodes the artifact to a local file via temp file + rename.
func SaveFile(path string, a *Artifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("write model file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// LoadFile decodes an artifact from a local file.
func LoadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return Decode(data)
}
