package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ReportSchemaVersion is the structured-extraction contract the LLM1 step
// must satisfy.
const ReportSchemaVersion = "1.1"

var reportValidate = validator.New(validator.WithRequiredStructEnabled())

// StructuredReport is the schema v1.1 payload produced by the LLM1
// extraction step. Unknown fields are rejected at decode time.
type StructuredReport struct {
	SchemaVersion      string          `json:"schema_version" validate:"required,eq=1.1"`
	AgencyRecordNumber string          `json:"agency_record_number" validate:"required"`
	Patient            ReportPatient   `json:"patient" validate:"required"`
	EDA                ReportEDA       `json:"eda" validate:"required"`
	PolicyPrecheck     PolicyPrecheck  `json:"policy_precheck" validate:"required"`
	Summary            ReportSummary   `json:"summary" validate:"required"`
}

// ReportPatient holds the extracted patient identification.
type ReportPatient struct {
	Name string `json:"name" validate:"required"`
	Age  *int   `json:"age,omitempty" validate:"omitempty,gte=0,lte=130"`
	Sex  string `json:"sex,omitempty" validate:"omitempty,oneof=male female unknown"`
}

// ReportEDA holds the extracted endoscopy request fields.
type ReportEDA struct {
	Procedure  string `json:"procedure" validate:"required"`
	Indication string `json:"indication" validate:"required"`
	Urgency    string `json:"urgency,omitempty" validate:"omitempty,oneof=routine priority urgent"`
}

// PolicyPrecheck is the rule-level eligibility screen from the report text.
type PolicyPrecheck struct {
	Eligible bool     `json:"eligible"`
	Flags    []string `json:"flags,omitempty"`
}

// ReportSummary carries the human-facing digest. The widget renders the
// bullets verbatim, so the 3..8 bound is part of the contract.
type ReportSummary struct {
	Bullets []string `json:"bullets" validate:"required,min=3,max=8,dive,required"`
}

// ParseStructuredReport decodes and validates an LLM1 response against
// schema v1.1. expectedRecordNumber is the value injected into the prompt;
// the model echoing anything else is a contract violation.
func ParseStructuredReport(data []byte, expectedRecordNumber string) (*StructuredReport, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var report StructuredReport
	if err := dec.Decode(&report); err != nil {
		return nil, fmt.Errorf("decoding structured report: %w", err)
	}
	if err := reportValidate.Struct(&report); err != nil {
		return nil, fmt.Errorf("validating structured report: %w", err)
	}
	if report.AgencyRecordNumber != expectedRecordNumber {
		return nil, fmt.Errorf("agency_record_number mismatch: got %q, expected %q",
			report.AgencyRecordNumber, expectedRecordNumber)
	}
	return &report, nil
}

// SummaryText joins the summary bullets into the widget body form.
func (r *StructuredReport) SummaryText() string {
	var buf bytes.Buffer
	for _, b := range r.Summary.Bullets {
		buf.WriteString("• ")
		buf.WriteString(b)
		buf.WriteString("\n")
	}
	return buf.String()
}

// SuggestedAction is the LLM2 recommendation stored on the case.
type SuggestedAction struct {
	Decision              DoctorDecision `json:"decision" validate:"required,oneof=accept deny"`
	SupportRecommendation SupportFlag    `json:"support_recommendation" validate:"required,oneof=none anesthesist anesthesist_icu"`
	Rationale             string         `json:"rationale,omitempty"`
}

// ParseSuggestedAction decodes and validates an LLM2 response.
func ParseSuggestedAction(data []byte) (*SuggestedAction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var action SuggestedAction
	if err := dec.Decode(&action); err != nil {
		return nil, fmt.Errorf("decoding suggested action: %w", err)
	}
	if err := reportValidate.Struct(&action); err != nil {
		return nil, fmt.Errorf("validating suggested action: %w", err)
	}
	return &action, nil
}
