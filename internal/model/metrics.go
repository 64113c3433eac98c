package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Report holds binary classification scores for the positive label 1.
type Report struct {
	F1        float64 `json:"f1_score"`
	Precision float64 `json:"precision_score"`
	Recall    float64 `json:"recall_score"`
	Accuracy  float64 `json:"accuracy"`
}

// Classify scores predictions against ground truth.
func Classify(yTrue, yPred []int) (Report, error) {
	if len(yTrue) == 0 {
		return Report{}, fmt.Errorf("no labels to score")
	}
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("got %d labels and %d predictions", len(yTrue), len(yPred))
	}
	var tp, fp, fn, correct int
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			tp++
		case yTrue[i] != 1 && yPred[i] == 1:
			fp++
		case yTrue[i] == 1 && yPred[i] != 1:
			fn++
		}
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return Report{
		F1:        ratio(2*tp, 2*tp+fp+fn),
		Precision: ratio(tp, tp+fp),
		Recall:    ratio(tp, tp+fn),
		Accuracy:  ratio(correct, len(yTrue)),
	}, nil
}

// F1Score is the harmonic mean of precision and recall for label 1.
// It is 0 when there are no true or predicted positives.
func F1Score(yTrue, yPred []int) (float64, error) {
	r, err := Classify(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.F1, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ParseLabels converts target cells ("0", "1", "1.0") into integer labels.
func ParseLabels(values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("label %d: parse %q: %w", i, v, err)
		}
		if f != 0 && f != 1 {
			return nil, fmt.Errorf("label %d: %q is not a binary label", i, v)
		}
		out[i] = int(f)
	}
	return out, nil
}
