package workflow

import (
	"medflow/pkg/gateway"
	"medflow/pkg/inference"
)

// FailureKind is the user-visible error taxonomy. Every lower-level failure
// resolves to one of these before leaving the engine.
type FailureKind string

const (
	// FailureNotFound means the patient ID has no record.
	FailureNotFound FailureKind = "not_found"
	// FailureUnavailable means a downstream dependency is unreachable.
	FailureUnavailable FailureKind = "unavailable"
	// FailureTimeout means a downstream call exceeded its deadline.
	FailureTimeout FailureKind = "timeout"
	// FailureMalformedResponse means a dependency violated its contract.
	FailureMalformedResponse FailureKind = "malformed_response"
	// FailureInvalidInput means the request or derived input was rejected.
	FailureInvalidInput FailureKind = "invalid_input"
	// FailureInsufficientData means the clarification bound was exceeded.
	FailureInsufficientData FailureKind = "insufficient_data"
	// FailureAborted means the enclosing request was cancelled mid-flight.
	FailureAborted FailureKind = "aborted"
)

// failureFromGateway maps a gateway error to the workflow taxonomy with a
// message safe to show the doctor. Not-found and unavailable produce
// different guidance on purpose.
func failureFromGateway(err error, patientID string) (FailureKind, string) {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return FailureNotFound, "No record exists for patient " + patientID + ". Check the patient ID and try again."
	case gateway.KindTimeout:
		return FailureTimeout, "The patient-data service did not respond in time. Try again shortly."
	case gateway.KindMalformed:
		return FailureMalformedResponse, "The patient-data service returned an unreadable record. Contact support if this persists."
	default:
		return FailureUnavailable, "The patient-data service is currently unavailable. Try again shortly."
	}
}

// failureFromInference maps an inference error to the workflow taxonomy.
func failureFromInference(err error) (FailureKind, string) {
	switch inference.KindOf(err) {
	case inference.KindTimeout:
		return FailureTimeout, "The diagnostic model did not respond in time. No report was generated."
	case inference.KindInvalidInput:
		return FailureInvalidInput, "The diagnostic model rejected the patient data. No report was generated."
	default:
		return FailureUnavailable, "The diagnostic model is currently unavailable. No report was generated."
	}
}
