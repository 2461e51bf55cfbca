package model

import (
	"fmt"
	"strings"
)

// PredictionStatus tells whether a classification call produced a verdict.
type PredictionStatus string

const (
	StatusSuccess PredictionStatus = "success"
	StatusError   PredictionStatus = "error"
)

// LabelAttack is the classifier label that marks hostile traffic.
const LabelAttack = "attack"

// Prediction is the result of one classification call. Failures are carried
// in-band with StatusError and an ErrorMessage.
type Prediction struct {
	Status            PredictionStatus `json:"status"`
	Prediction        int              `json:"prediction"`
	Label             string           `json:"prediction_label,omitempty"`
	Confidence        float64          `json:"confidence"`
	NormalProbability float64          `json:"normal_probability"`
	AttackProbability float64          `json:"attack_probability"`
	ErrorMessage      string           `json:"error_message,omitempty"`

	// Interrupted is set when the call was abandoned because its context
	// was canceled, as opposed to failing on its own.
	Interrupted bool `json:"-"`
}

// NewPrediction builds a successful prediction.
func NewPrediction(prediction int, label string, confidence, normalProb, attackProb float64) Prediction {
	return Prediction{
		Status:            StatusSuccess,
		Prediction:        prediction,
		Label:             label,
		Confidence:        confidence,
		NormalProbability: normalProb,
		AttackProbability: attackProb,
	}
}

// PredictionError builds an error-status prediction.
func PredictionError(msg string) Prediction {
	return Prediction{Status: StatusError, Prediction: -1, ErrorMessage: msg}
}

// IsAttack reports whether the label matches "attack", ignoring case.
// Every other label, error predictions included, counts as normal traffic.
func (p Prediction) IsAttack() bool {
	return strings.EqualFold(p.Label, LabelAttack)
}

// Succeeded reports whether the classifier returned a verdict.
func (p Prediction) Succeeded() bool {
	return p.Status == StatusSuccess
}

// Formatted renders the prediction for terminal output.
func (p Prediction) Formatted() string {
	if p.Status == StatusError {
		return "Error: " + p.ErrorMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prediction: %s (%d)\n", p.Label, p.Prediction)
	fmt.Fprintf(&b, "Confidence: %.2f\n", p.Confidence)
	fmt.Fprintf(&b, "Probabilities: Normal=%.2f, Attack=%.2f\n", p.NormalProbability, p.AttackProbability)
	fmt.Fprintf(&b, "Status: %s", p.Status)
	return b.String()
}
