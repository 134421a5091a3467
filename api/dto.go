/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the decimal-based domain model from the float-based JSON contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Sprint:
    SprintDTO, CreateSprintRequest, SprintDayDTO

  Daily updates:
    DailyUpdateDTO, CreateDailyUpdateRequest

  Compensation:
    CompensationInputDTO, MilestoneDTO, ComputeResponse, BreakdownDTO,
    MilestonePayoutDTO, AddMilestoneRequest, SaveCompensationRequest,
    SavedPlanDTO, ImportResponse, EmailRequest

VALIDATION:
  Validation is done by the domain packages, not in DTOs. DTOs are pure
  data carriers plus conversion to and from domain types.

SEE ALSO:
  - handlers.go: Uses these types
  - compensation/snapshot.go: Persisted plan shape
*/
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/generic"
	"github.com/warp/sprint-engine/sprint"
)

// =============================================================================
// SPRINTS
// =============================================================================

// SprintDTO represents a sprint in API responses.
type SprintDTO struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	ClientName string  `json:"client_name"`
	StartDate  *string `json:"start_date,omitempty"`
	Weeks      int     `json:"weeks"`
	TotalDays  int     `json:"total_days"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// CreateSprintRequest is the request to create a sprint. ID is generated
// when empty; Weeks defaults to two.
type CreateSprintRequest struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	ClientName string  `json:"client_name"`
	StartDate  *string `json:"start_date,omitempty"`
	Weeks      int     `json:"weeks"`
}

// SprintDayDTO is the suggested sprint day for a date.
type SprintDayDTO struct {
	SprintID  string `json:"sprint_id"`
	Date      string `json:"date"`
	SprintDay int    `json:"sprint_day"`
	TotalDays int    `json:"total_days"`
}

func toSprintDTO(s sprint.Sprint) SprintDTO {
	dto := SprintDTO{
		ID:         string(s.ID),
		Title:      s.Title,
		ClientName: s.ClientName,
		Weeks:      s.Weeks,
		TotalDays:  s.Window().TotalDays(),
	}
	if s.StartDate != nil {
		d := s.StartDate.Format(generic.DateLayout)
		dto.StartDate = &d
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DAILY UPDATES
// =============================================================================

// DailyUpdateDTO represents a daily update in API responses.
type DailyUpdateDTO struct {
	ID          string              `json:"id"`
	SprintID    string              `json:"sprint_id"`
	SprintDay   int                 `json:"sprint_day"`
	Frame       *string             `json:"frame"`
	Body        string              `json:"body"`
	Links       []sprint.Link       `json:"links"`
	Attachments []sprint.Attachment `json:"attachments"`
	CreatedAt   string              `json:"created_at,omitempty"`
}

// CreateDailyUpdateRequest is the request to post a daily update. A zero
// SprintDay is replaced by today's suggested sprint day.
type CreateDailyUpdateRequest struct {
	SprintDay   int                 `json:"sprint_day"`
	Frame       *string             `json:"frame"`
	Body        string              `json:"body"`
	Links       []sprint.Link       `json:"links"`
	Attachments []sprint.Attachment `json:"attachments"`
}

func toDailyUpdateDTO(u sprint.DailyUpdate) DailyUpdateDTO {
	dto := DailyUpdateDTO{
		ID:          u.ID,
		SprintID:    string(u.SprintID),
		SprintDay:   u.SprintDay,
		Frame:       u.Frame,
		Body:        u.Body,
		Links:       u.Links,
		Attachments: u.Attachments,
	}
	if dto.Links == nil {
		dto.Links = []sprint.Link{}
	}
	if dto.Attachments == nil {
		dto.Attachments = []sprint.Attachment{}
	}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// COMPENSATION
// =============================================================================

// MilestoneDTO is one milestone row. Multiplier is null when not a number.
type MilestoneDTO struct {
	ID         string   `json:"id,omitempty"`
	Summary    string   `json:"summary"`
	Multiplier *float64 `json:"multiplier"`
	Date       string   `json:"date"`
}

// CompensationInputDTO is the full calculator state sent by the client.
type CompensationInputDTO struct {
	SprintID            string         `json:"sprint_id,omitempty"`
	TotalProjectValue   float64        `json:"total_project_value"`
	UpfrontFraction     float64        `json:"upfront_fraction"`
	EquitySplitFraction float64        `json:"equity_split_fraction"`
	MissOutcome         string         `json:"miss_outcome,omitempty"`
	Milestones          []MilestoneDTO `json:"milestones"`
}

// toState converts client input into calculator state. Fractions are
// clamped; milestones without an id get one.
func (in CompensationInputDTO) toState() compensation.State {
	plan := compensation.NewPlan().
		WithTotalProjectValueFloat(in.TotalProjectValue).
		WithUpfrontFractionFloat(in.UpfrontFraction).
		WithEquitySplitFractionFloat(in.EquitySplitFraction)
	if o, ok := compensation.ParseMissOutcome(in.MissOutcome); ok {
		plan = plan.WithMissOutcome(o)
	}

	milestones := make([]compensation.Milestone, 0, len(in.Milestones))
	for _, m := range in.Milestones {
		ms := compensation.Milestone{
			ID:      generic.MilestoneID(m.ID),
			Summary: m.Summary,
			Date:    m.Date,
		}
		if ms.ID == "" {
			ms.ID = generic.MilestoneID(uuid.Must(uuid.NewV7()).String())
		}
		if m.Multiplier != nil {
			if d, ok := generic.DecimalFromFloat(*m.Multiplier); ok {
				ms.Multiplier = decimal.NewNullDecimal(d)
			}
		}
		milestones = append(milestones, ms)
	}

	return compensation.State{Plan: plan, Milestones: milestones, SelectedSprint: in.SprintID}
}

func toCompensationInputDTO(s compensation.State) CompensationInputDTO {
	dto := CompensationInputDTO{
		SprintID:            s.SelectedSprint,
		TotalProjectValue:   s.Plan.TotalProjectValue().InexactFloat64(),
		UpfrontFraction:     s.Plan.UpfrontFraction().InexactFloat64(),
		EquitySplitFraction: s.Plan.EquitySplitFraction().InexactFloat64(),
		MissOutcome:         string(s.Plan.MissOutcome()),
		Milestones:          make([]MilestoneDTO, 0, len(s.Milestones)),
	}
	for _, m := range s.Milestones {
		dto.Milestones = append(dto.Milestones, toMilestoneDTO(m))
	}
	return dto
}

func toMilestoneDTO(m compensation.Milestone) MilestoneDTO {
	dto := MilestoneDTO{ID: string(m.ID), Summary: m.Summary, Date: m.Date}
	if m.Multiplier.Valid {
		f := m.Multiplier.Decimal.InexactFloat64()
		dto.Multiplier = &f
	}
	return dto
}

// BreakdownDTO is the derived split.
type BreakdownDTO struct {
	TotalProjectValue   float64 `json:"total_project_value"`
	UpfrontFraction     float64 `json:"upfront_fraction"`
	EquitySplitFraction float64 `json:"equity_split_fraction"`
	RemainingFraction   float64 `json:"remaining_fraction"`
	EquityFraction      float64 `json:"equity_fraction"`
	DeferredFraction    float64 `json:"deferred_fraction"`
	UpfrontAmount       float64 `json:"upfront_amount"`
	EquityAmount        float64 `json:"equity_amount"`
	DeferredAmount      float64 `json:"deferred_amount"`
}

// MilestonePayoutDTO is a milestone with its price. The payout fields are
// null when the multiplier is not a number.
type MilestonePayoutDTO struct {
	MilestoneDTO
	DeferredPayout *float64 `json:"deferred_payout"`
	EquityPayout   *float64 `json:"equity_payout"`
	TotalCost      *float64 `json:"total_cost"`
}

// ComputeResponse is the calculator output for one input state.
type ComputeResponse struct {
	Breakdown            BreakdownDTO         `json:"breakdown"`
	Milestones           []MilestonePayoutDTO `json:"milestones"`
	TotalMultiplier      float64              `json:"total_multiplier"`
	MilestoneBonusAmount float64              `json:"milestone_bonus_amount"`
	MissOutcome          string               `json:"miss_outcome"`
	MissOutcomeLabel     string               `json:"miss_outcome_label"`
}

func toComputeResponse(s compensation.State) ComputeResponse {
	b := s.Plan.Compute()
	ledger := compensation.NewLedgerFrom(s.Milestones)

	resp := ComputeResponse{
		Breakdown: BreakdownDTO{
			TotalProjectValue:   b.TotalProjectValue.InexactFloat64(),
			UpfrontFraction:     b.UpfrontFraction.InexactFloat64(),
			EquitySplitFraction: s.Plan.EquitySplitFraction().InexactFloat64(),
			RemainingFraction:   b.RemainingFraction.InexactFloat64(),
			EquityFraction:      b.EquityFraction.InexactFloat64(),
			DeferredFraction:    b.DeferredFraction.InexactFloat64(),
			UpfrontAmount:       b.UpfrontAmount.InexactFloat64(),
			EquityAmount:        b.EquityAmount.InexactFloat64(),
			DeferredAmount:      b.DeferredAmount.InexactFloat64(),
		},
		Milestones:           make([]MilestonePayoutDTO, 0, ledger.Len()),
		TotalMultiplier:      ledger.TotalMultiplier().InexactFloat64(),
		MilestoneBonusAmount: compensation.MilestoneBonusAmount(b, ledger).InexactFloat64(),
		MissOutcome:          string(s.Plan.MissOutcome()),
		MissOutcomeLabel:     s.Plan.MissOutcome().Label(),
	}

	for _, mp := range ledger.Payouts(b) {
		dto := MilestonePayoutDTO{MilestoneDTO: toMilestoneDTO(mp.Milestone)}
		if mp.Available {
			deferred := mp.Payout.DeferredPayout.InexactFloat64()
			equity := mp.Payout.EquityPayout.InexactFloat64()
			total := mp.Payout.TotalCost.InexactFloat64()
			dto.DeferredPayout, dto.EquityPayout, dto.TotalCost = &deferred, &equity, &total
		}
		resp.Milestones = append(resp.Milestones, dto)
	}
	return resp
}

// AddMilestoneRequest validates a new milestone against the current list.
type AddMilestoneRequest struct {
	Milestones []MilestoneDTO `json:"milestones"`
	Summary    string         `json:"summary"`
	Multiplier float64        `json:"multiplier"`
	Date       string         `json:"date"`
}

// AddMilestoneResponse returns the list with the new milestone appended.
type AddMilestoneResponse struct {
	Milestone  MilestoneDTO   `json:"milestone"`
	Milestones []MilestoneDTO `json:"milestones"`
}

// SaveCompensationRequest saves the current calculator state for a sprint.
type SaveCompensationRequest struct {
	Label  string               `json:"label"`
	Inputs CompensationInputDTO `json:"inputs"`
}

// SavedPlanDTO is a stored plan.
type SavedPlanDTO struct {
	ID        int64                 `json:"id"`
	CreatedAt string                `json:"created_at,omitempty"`
	Snapshot  compensation.Snapshot `json:"snapshot"`
}

// ImportResponse is the calculator state recovered from a CSV.
type ImportResponse struct {
	Message            string               `json:"message"`
	Inputs             CompensationInputDTO `json:"inputs"`
	Applied            []string             `json:"applied"`
	MilestonesImported int                  `json:"milestones_imported"`
}

// EmailRequest sends the current calculator state to a recipient list.
type EmailRequest struct {
	Recipients string               `json:"recipients"`
	Label      string               `json:"label"`
	Inputs     CompensationInputDTO `json:"inputs"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
