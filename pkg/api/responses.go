package api

import (
	"encoding/json"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// caseListItemResponse is one row of the monitoring list.
type caseListItemResponse struct {
	CaseID             string                    `json:"case_id"`
	Status             lifecycle.Status          `json:"status"`
	AgencyRecordNumber *string                   `json:"agency_record_number"`
	DoctorDecision     *models.DoctorDecision    `json:"doctor_decision"`
	AppointmentStatus  *models.AppointmentStatus `json:"appointment_status"`
	CreatedAt          time.Time                 `json:"created_at"`
	LatestActivityAt   time.Time                 `json:"latest_activity_at"`
}

type caseListResponse struct {
	Items []caseListItemResponse `json:"items"`
	Total int                    `json:"total"`
	Page  int                    `json:"page"`
	Size  int                    `json:"page_size"`
}

func renderCaseList(list *models.CaseList) caseListResponse {
	items := make([]caseListItemResponse, 0, len(list.Items))
	for _, it := range list.Items {
		items = append(items, caseListItemResponse{
			CaseID:             it.CaseID,
			Status:             it.Status,
			AgencyRecordNumber: it.AgencyRecordNumber,
			DoctorDecision:     it.DoctorDecision,
			AppointmentStatus:  it.AppointmentStatus,
			CreatedAt:          it.CreatedAt,
			LatestActivityAt:   it.LatestActivityAt,
		})
	}
	return caseListResponse{Items: items, Total: list.Total, Page: list.Page, Size: list.Size}
}

type timelineEntryResponse struct {
	Source     string          `json:"source"`
	Label      string          `json:"label"`
	RoomID     *string         `json:"room_id,omitempty"`
	EventID    *string         `json:"event_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	HappenedAt time.Time       `json:"happened_at"`
}

type checkpointResponse struct {
	Stage         models.CheckpointStage   `json:"stage"`
	Outcome       models.CheckpointOutcome `json:"outcome"`
	RoomID        string                   `json:"room_id"`
	TargetEventID string                   `json:"target_event_id"`
	ReactionAt    *time.Time               `json:"reaction_at,omitempty"`
}

type caseDetailResponse struct {
	CaseID             string                    `json:"case_id"`
	Status             lifecycle.Status          `json:"status"`
	AgencyRecordNumber *string                   `json:"agency_record_number"`
	DoctorDecision     *models.DoctorDecision    `json:"doctor_decision"`
	DoctorReason       *string                   `json:"doctor_reason"`
	AppointmentStatus  *models.AppointmentStatus `json:"appointment_status"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	Timeline           []timelineEntryResponse   `json:"timeline"`
	Checkpoints        []checkpointResponse      `json:"checkpoints"`
}

func renderCaseDetail(det *models.CaseDetail) caseDetailResponse {
	timeline := make([]timelineEntryResponse, 0, len(det.Timeline))
	for _, entry := range det.Timeline {
		timeline = append(timeline, timelineEntryResponse{
			Source:     entry.Source,
			Label:      entry.Label,
			RoomID:     entry.RoomID,
			EventID:    entry.EventID,
			Payload:    entry.Payload,
			HappenedAt: entry.HappenedAt,
		})
	}
	checkpoints := make([]checkpointResponse, 0, len(det.Checkpoints))
	for _, cp := range det.Checkpoints {
		checkpoints = append(checkpoints, checkpointResponse{
			Stage:         cp.Stage,
			Outcome:       cp.Outcome,
			RoomID:        cp.RoomID,
			TargetEventID: cp.TargetExternalEventID,
			ReactionAt:    cp.ReactionAt,
		})
	}
	return caseDetailResponse{
		CaseID:             det.Case.ID,
		Status:             det.Case.Status,
		AgencyRecordNumber: det.Case.AgencyRecordNumber,
		DoctorDecision:     det.Case.DoctorDecision,
		DoctorReason:       det.Case.DoctorReason,
		AppointmentStatus:  det.Case.AppointmentStatus,
		CreatedAt:          det.Case.CreatedAt,
		UpdatedAt:          det.Case.UpdatedAt,
		Timeline:           timeline,
		Checkpoints:        checkpoints,
	}
}

type summaryResponse struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	PatientsReceived int       `json:"patients_received"`
	ReportsProcessed int       `json:"reports_processed"`
	CasesEvaluated   int       `json:"cases_evaluated"`
	Accepted         int       `json:"accepted"`
	Refused          int       `json:"refused"`
}

func renderSummary(sum *models.DailySummary) summaryResponse {
	return summaryResponse{
		From:             sum.From,
		To:               sum.To,
		PatientsReceived: sum.PatientsReceived,
		ReportsProcessed: sum.ReportsProcessed,
		CasesEvaluated:   sum.CasesEvaluated,
		Accepted:         sum.Accepted,
		Refused:          sum.Refused,
	}
}
