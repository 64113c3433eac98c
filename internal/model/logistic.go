package model

import (
	"fmt"
	"math"
)

// LogisticRegression is a binary classifier over standardized features.
type LogisticRegression struct {
	Weights   []float64
	Bias      float64
	Threshold float64
}

// LogisticOptions tunes batch gradient descent.
type LogisticOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
	// ClassWeighted reweights the positive class by the negative/positive
	// ratio, which keeps rare positives (strokes) from being ignored.
	ClassWeighted bool
}

// DefaultLogisticOptions returns the settings used when none are configured.
func DefaultLogisticOptions() LogisticOptions {
	return LogisticOptions{
		Epochs:        500,
		LearningRate:  0.1,
		L2:            0.001,
		ClassWeighted: true,
	}
}

// FitLogisticRegression trains a classifier on x with labels y in {0, 1}.
func FitLogisticRegression(x [][]float64, y []int, opts LogisticOptions) (*LogisticRegression, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("cannot fit on zero rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("got %d rows and %d labels", len(x), len(y))
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultLogisticOptions().Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultLogisticOptions().LearningRate
	}

	width := len(x[0])
	positives := 0
	for i, label := range y {
		if len(x[i]) != width {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(x[i]), width)
		}
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("row %d has label %d, want 0 or 1", i, label)
		}
		positives += label
	}

	posWeight := 1.0
	if opts.ClassWeighted && positives > 0 && positives < len(y) {
		posWeight = float64(len(y)-positives) / float64(positives)
	}

	m := &LogisticRegression{Weights: make([]float64, width), Threshold: 0.5}
	grad := make([]float64, width)
	n := float64(len(x))
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, row := range x {
			w := 1.0
			if y[i] == 1 {
				w = posWeight
			}
			diff := w * (m.probability(row) - float64(y[i]))
			for j, v := range row {
				grad[j] += diff * v
			}
			gradBias += diff
		}
		for j := range m.Weights {
			m.Weights[j] -= opts.LearningRate * (grad[j]/n + opts.L2*m.Weights[j])
		}
		m.Bias -= opts.LearningRate * gradBias / n
	}
	return m, nil
}

func (m *LogisticRegression) probability(row []float64) float64 {
	z := m.Bias
	for j, v := range row {
		z += m.Weights[j] * v
	}
	return 1 / (1 + math.Exp(-z))
}

// Predict labels each row 1 when its probability reaches the threshold.
func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	for i, row := range x {
		if len(row) != len(m.Weights) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.Weights))
		}
		if m.probability(row) >= m.Threshold {
			out[i] = 1
		}
	}
	return out, nil
}
