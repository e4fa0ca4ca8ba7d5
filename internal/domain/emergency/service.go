// Package emergency coordinates the patient journey: triage intake, ambulance
// dispatch, crew updates and clinician plan approval. Engine-driven
// progression lives in the workflow package; this package owns the
// user-initiated actions.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/erflow/erflow/internal/domain/hospital"
	"github.com/erflow/erflow/internal/domain/patient"
	"github.com/erflow/erflow/internal/platform/gateway"
)

// Common errors returned by the coordination service.
var (
	ErrMissingNHSNumber    = errors.New("nhs_number is required")
	ErrMissingSymptoms     = errors.New("symptoms description is required")
	ErrMissingName         = errors.New("patient name is required")
	ErrAlreadyDispatched   = errors.New("case is already past dispatch")
	ErrNoActiveDispatch    = errors.New("case has no active dispatch")
	ErrNotAwaitingApproval = errors.New("case is not awaiting plan approval")
	ErrMissingUpdateText   = errors.New("update text is required")
)

// Assessor is the slice of the external gateway the service consumes.
type Assessor interface {
	AssessSeverity(ctx context.Context, req gateway.AssessmentRequest) (*gateway.Assessment, error)
	PlanResources(ctx context.Context, req gateway.PlanRequest) (*gateway.Plan, error)
	FirstAidInstructions(ctx context.Context, symptoms string) (*gateway.FirstAid, error)
}

// Service applies user-initiated actions to the case store.
type Service struct {
	store      *patient.Store
	assessor   Assessor
	hospitals  *hospital.Registry
	defaultETA int
	log        zerolog.Logger
	now        func() time.Time
}

// NewService wires the coordination service. defaultETA is the minute
// estimate used when a dispatch decision does not supply one.
func NewService(store *patient.Store, assessor Assessor, hospitals *hospital.Registry, defaultETA int, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		assessor:   assessor,
		hospitals:  hospitals,
		defaultETA: defaultETA,
		log:        logger,
		now:        time.Now,
	}
}

// RegisterRequest is a triage intake submission.
type RegisterRequest struct {
	Name                string                     `json:"name"`
	NHSNumber           string                     `json:"nhs_number"`
	Symptoms            string                     `json:"symptoms"`
	VideoFilename       string                     `json:"video_filename,omitempty"`
	Bleeding            bool                       `json:"bleeding,omitempty"`
	ConversationHistory []gateway.ConversationTurn `json:"conversation_history,omitempty"`
	HospitalID          string                     `json:"hospital_id,omitempty"`
}

// RegisterResult is the triage outcome. When the gateway needs more
// information, Question is set and no case has been created yet.
type RegisterResult struct {
	NeedsMoreInfo   bool          `json:"needs_more_info"`
	Question        string        `json:"question,omitempty"`
	Case            *patient.Case `json:"case,omitempty"`
	WaitTimeMinutes int           `json:"wait_time_minutes,omitempty"`
}

// RegisterPatient runs the interactive triage assessment and, once the
// gateway produces a final severity, creates the case: severity 8 and above
// goes straight to ambulance dispatch, anything below joins the remote
// waiting queue.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if req.NHSNumber == "" {
		return nil, ErrMissingNHSNumber
	}
	if req.Name == "" {
		return nil, ErrMissingName
	}
	if req.Symptoms == "" {
		return nil, ErrMissingSymptoms
	}

	assessment, err := s.assessor.AssessSeverity(ctx, gateway.AssessmentRequest{
		Symptoms:            req.Symptoms,
		VideoFilename:       req.VideoFilename,
		Bleeding:            req.Bleeding,
		ConversationHistory: req.ConversationHistory,
	})
	if err != nil {
		return nil, err
	}

	if assessment.NeedsMoreInfo {
		return &RegisterResult{NeedsMoreInfo: true, Question: assessment.Question}, nil
	}

	now := s.now()
	c := &patient.Case{
		ID:                 uuid.New(),
		Name:               req.Name,
		NHSNumber:          req.NHSNumber,
		Severity:           assessment.Severity,
		TriageNotes:        assessment.TriageNotes,
		SymptomDescription: req.Symptoms,
		VideoFilename:      req.VideoFilename,
		StatusChangedAt:    now,
		CreatedAt:          now,
	}

	result := &RegisterResult{}
	if assessment.Severity >= 8 {
		dispatched := now
		c.Status = patient.StatusDispatched
		c.DispatchedAt = &dispatched
		c.ETATotalMinutes = s.defaultETA
		c.ETAMinutes = patient.IntPtr(s.defaultETA)
		s.log.Info().
			Str("nhs_number", c.NHSNumber).
			Int("severity", c.Severity).
			Msg("high-severity intake, ambulance dispatched")
	} else {
		c.Status = patient.StatusWaitingRemote
		result.WaitTimeMinutes = waitEstimateMinutes(assessment.Severity, s.store.Len())
		s.log.Info().
			Str("nhs_number", c.NHSNumber).
			Int("severity", c.Severity).
			Int("wait_minutes", result.WaitTimeMinutes).
			Msg("patient queued for remote waiting")
	}

	if err := s.store.Add(c); err != nil {
		return nil, fmt.Errorf("add case: %w", err)
	}
	result.Case = c.Clone()
	return result, nil
}

// Dispatch moves a waiting case to ambulance_dispatched. The dispatch
// timestamp is set here, exactly once; it is never recomputed afterwards.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, etaMinutes int) (*patient.Case, error) {
	if etaMinutes <= 0 {
		etaMinutes = s.defaultETA
	}

	now := s.now()
	var out *patient.Case
	err := s.store.Update(id, func(c *patient.Case) error {
		if c.Status != patient.StatusWaitingRemote {
			return ErrAlreadyDispatched
		}
		c.Status = patient.StatusDispatched
		c.StatusChangedAt = now
		if c.DispatchedAt == nil {
			dispatched := now
			c.DispatchedAt = &dispatched
		}
		c.ETATotalMinutes = etaMinutes
		c.ETAMinutes = patient.IntPtr(etaMinutes)
		out = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("nhs_number", out.NHSNumber).
		Int("eta_minutes", etaMinutes).
		Msg("ambulance dispatched")
	return out, nil
}

// SendCrewUpdate appends a crew-to-hospital communication. For a severity 8+
// case without a plan yet, the update also requests a resource plan from the
// gateway and parks the case in awaiting_plan_approval. While the gateway
// call is pending the case is frozen so the engine cannot advance it; if the
// call fails only the freeze flag is rolled back, so the record is exactly
// as it was before the action.
func (s *Service) SendCrewUpdate(ctx context.Context, id uuid.UUID, text, video string) (*patient.Case, error) {
	if text == "" {
		return nil, ErrMissingUpdateText
	}

	orig, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	switch orig.Status {
	case patient.StatusDispatched, patient.StatusInTransit, patient.StatusPrepReady:
	default:
		return nil, ErrNoActiveDispatch
	}

	now := s.now()
	update := patient.CrewUpdate{Timestamp: now, Text: text, Video: video}

	if orig.Severity >= 8 && orig.ResourcePlan == nil {
		return s.updateWithResourcePlan(ctx, orig, update, now)
	}

	var out *patient.Case
	err = s.store.Update(id, func(c *patient.Case) error {
		switch c.Status {
		case patient.StatusDispatched, patient.StatusInTransit, patient.StatusPrepReady:
		default:
			return ErrNoActiveDispatch
		}
		c.Updates = append(c.Updates, update)
		if c.Status == patient.StatusDispatched {
			c.Status = patient.StatusInTransit
			c.StatusChangedAt = now
		}
		out = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("nhs_number", out.NHSNumber).Msg("crew update received")
	return out, nil
}

// updateWithResourcePlan holds the case frozen while the gateway produces a
// plan, then applies the update, the plan and the approval status in a single
// store update.
func (s *Service) updateWithResourcePlan(ctx context.Context, orig *patient.Case, update patient.CrewUpdate, now time.Time) (*patient.Case, error) {
	// Freeze first so the engine cannot advance the case mid-call.
	err := s.store.Update(orig.ID, func(c *patient.Case) error {
		switch c.Status {
		case patient.StatusDispatched, patient.StatusInTransit, patient.StatusPrepReady:
		default:
			return ErrNoActiveDispatch
		}
		c.AssessmentPending = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	capacity := gateway.HospitalCapacity{}
	if s.hospitals != nil {
		if list := s.hospitals.List(); len(list) > 0 {
			capacity = gateway.HospitalCapacity{Current: list[0].CurrentCapacity, Max: list[0].MaxCapacity}
		}
	}

	plan, err := s.assessor.PlanResources(ctx, gateway.PlanRequest{
		Patient:          orig.Clone(),
		HospitalCapacity: capacity,
	})
	if err != nil {
		// Abandon the action. The freeze flag is the only write made before
		// the call, so clearing it restores the pre-call record without
		// touching anything written concurrently.
		if restoreErr := s.store.Update(orig.ID, func(c *patient.Case) error {
			c.AssessmentPending = false
			return nil
		}); restoreErr != nil {
			s.log.Error().Err(restoreErr).Str("nhs_number", orig.NHSNumber).Msg("restore after plan failure")
		}
		s.log.Warn().Err(err).Str("nhs_number", orig.NHSNumber).Msg("resource plan request failed")
		return nil, err
	}

	var out *patient.Case
	err = s.store.Update(orig.ID, func(c *patient.Case) error {
		c.Updates = append(c.Updates, update)
		c.ResourcePlan = &patient.ResourcePlan{
			PlanText:          plan.PlanText,
			Entrance:          plan.Entrance,
			RoomAssignment:    plan.RoomAssignment,
			SpecialistsNeeded: plan.SpecialistsNeeded,
			EquipmentRequired: plan.EquipmentRequired,
			StaffToContact:    plan.StaffToContact,
			AreasToClear:      plan.AreasToClear,
		}
		c.Status = patient.StatusAwaitingApproval
		c.StatusChangedAt = now
		c.AssessmentPending = false
		out = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("nhs_number", out.NHSNumber).
		Str("entrance", plan.Entrance).
		Msg("resource plan proposed, awaiting clinician approval")
	return out, nil
}

// ApprovePlan records clinician approval, optionally with an edited plan
// text, and releases the case into hospital preparation.
func (s *Service) ApprovePlan(ctx context.Context, id uuid.UUID, editedPlanText string) (*patient.Case, error) {
	now := s.now()
	var out *patient.Case
	err := s.store.Update(id, func(c *patient.Case) error {
		if c.Status != patient.StatusAwaitingApproval {
			return ErrNotAwaitingApproval
		}
		if editedPlanText != "" && c.ResourcePlan != nil {
			c.ResourcePlan.PlanText = editedPlanText
		}
		c.Status = patient.StatusPrepReady
		c.StatusChangedAt = now
		out = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("nhs_number", out.NHSNumber).Msg("resource plan approved")
	return out, nil
}

// FirstAid fetches bystander instructions for a registered case's symptoms.
func (s *Service) FirstAid(ctx context.Context, id uuid.UUID) (*gateway.FirstAid, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return s.assessor.FirstAidInstructions(ctx, c.SymptomDescription)
}

// Get returns a single case.
func (s *Service) Get(id uuid.UUID) (*patient.Case, error) {
	return s.store.Get(id)
}

// List returns every case in intake order.
func (s *Service) List() []*patient.Case {
	return s.store.All()
}

// waitEstimateMinutes is the remote-queue wait heuristic: lower severity and
// a longer queue both push the estimate out.
func waitEstimateMinutes(severity, queueLen int) int {
	base := (10 - severity) * 10
	if base < 10 {
		base = 10
	}
	return base + queueLen*15
}
