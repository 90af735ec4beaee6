package workflow

import (
	"context"

	"medflow/pkg/gateway"
	"medflow/pkg/inference"
)

// fakeGateway returns a canned record or error.
type fakeGateway struct {
	record *gateway.NormalizedRecord
	err    error
	calls  int
}

func (g *fakeGateway) Fetch(_ context.Context, _ string) (*gateway.NormalizedRecord, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.record, nil
}

// fakeAdapter returns a canned prediction or error and records its input.
type fakeAdapter struct {
	prediction *inference.Prediction
	err        error
	calls      int

	lastModelType string
	lastInput     map[string]any
}

func (a *fakeAdapter) Diagnose(_ context.Context, modelType string, input map[string]any) (*inference.Prediction, error) {
	a.calls++
	a.lastModelType = modelType
	a.lastInput = input
	if a.err != nil {
		return nil, a.err
	}
	return a.prediction, nil
}

func diabetesRecord() *gateway.NormalizedRecord {
	return &gateway.NormalizedRecord{
		Personal: gateway.Personal{Name: "Jane Smith", Gender: "female", Age: 54},
		Medical: map[string]any{
			"bmi":                 float64(31.2),
			"HbA1c_level":         float64(6.1),
			"blood_glucose_level": float64(145),
			"hypertension":        float64(1),
		},
	}
}

func cardioRecord() *gateway.NormalizedRecord {
	return &gateway.NormalizedRecord{
		Personal: gateway.Personal{Name: "John Doe", Gender: "male", Age: 61},
		Medical: map[string]any{
			"height":      float64(175),
			"weight":      float64(92),
			"ap_hi":       float64(150),
			"ap_lo":       float64(95),
			"cholesterol": float64(2),
			"gluc":        float64(1),
			"smoke":       float64(0),
			"alco":        float64(0),
			"active":      float64(1),
		},
	}
}
