// Package inference provides the boundary to the specialized medical
// inference service, reached over the Model Context Protocol.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind distinguishes inference failures.
type ErrorKind int8

const (
	// KindUnavailable means the inference service is unreachable or errored.
	KindUnavailable ErrorKind = iota
	// KindTimeout means the inference call exceeded its deadline.
	KindTimeout
	// KindInvalidInput means the service rejected the structured input.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "inference_unavailable"
	case KindTimeout:
		return "inference_timeout"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "invalid"
	}
}

// Error is a classified inference failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("inference %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, defaulting to KindUnavailable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// FeatureAttribution is one entry of the model's explanation block: how much
// a single input field pushed the prediction, and in which direction.
type FeatureAttribution struct {
	Feature   string  `json:"feature"`
	Impact    float64 `json:"impact"`
	Direction string  `json:"direction,omitempty"`
}

// Prediction is the structured result of one inference call.
type Prediction struct {
	Answer       string               `json:"answer"`
	Explanations []FeatureAttribution `json:"explanations,omitempty"`
}

// Adapter invokes the medical inference model on a merged patient input.
type Adapter interface {
	Diagnose(ctx context.Context, modelType string, input map[string]any) (*Prediction, error)
}

// parsePredictionPayload decodes the service's JSON text payload. Services
// that return bare prose instead of the JSON envelope still yield a usable
// prediction with the prose as answer.
func parsePredictionPayload(text string) (*Prediction, error) {
	var envelope struct {
		Answer       string               `json:"answer"`
		Explanations []FeatureAttribution `json:"explanations"`
		Error        *string              `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		if text == "" {
			return nil, &Error{Kind: KindUnavailable, Message: "empty prediction payload"}
		}
		return &Prediction{Answer: text}, nil
	}

	if envelope.Error != nil && *envelope.Error != "" {
		return nil, &Error{Kind: KindInvalidInput, Message: *envelope.Error}
	}
	if envelope.Answer == "" {
		return nil, &Error{Kind: KindUnavailable, Message: "no answer from prediction model"}
	}

	return &Prediction{Answer: envelope.Answer, Explanations: envelope.Explanations}, nil
}
