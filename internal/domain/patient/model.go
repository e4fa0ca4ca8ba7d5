package patient

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of states a case moves through. The engine only
// ever advances a case forward along this order.
type Status string

const (
	StatusWaitingRemote      Status = "waiting_remote"
	StatusDispatched         Status = "ambulance_dispatched"
	StatusAwaitingApproval   Status = "awaiting_plan_approval"
	StatusPrepReady          Status = "prep_ready"
	StatusInTransit          Status = "in_transit"
	StatusArrived            Status = "arrived"
	StatusMovingToTheatre    Status = "moving_to_theatre"
	StatusInOperationTheatre Status = "in_operation_theatre"
)

// statusRank orders the pipeline. A transition to a lower or equal rank is a
// backward move and is rejected everywhere.
var statusRank = map[Status]int{
	StatusWaitingRemote:      0,
	StatusDispatched:         1,
	StatusAwaitingApproval:   2,
	StatusPrepReady:          3,
	StatusInTransit:          4,
	StatusArrived:            5,
	StatusMovingToTheatre:    6,
	StatusInOperationTheatre: 7,
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s comes strictly earlier in the pipeline than other.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// Terminal reports whether the engine has no outward transition from s.
func (s Status) Terminal() bool {
	return s == StatusInOperationTheatre
}

// ResourcePlan is the hospital preparation plan produced by the assessment
// gateway and reviewed by a clinician before activation.
type ResourcePlan struct {
	PlanText          string   `json:"plan_text"`
	Entrance          string   `json:"entrance"`
	RoomAssignment    string   `json:"room_assignment,omitempty"`
	SpecialistsNeeded []string `json:"specialists_needed,omitempty"`
	EquipmentRequired []string `json:"equipment_required,omitempty"`
	StaffToContact    []string `json:"staff_to_contact,omitempty"`
	AreasToClear      []string `json:"areas_to_clear,omitempty"`
}

// CrewUpdate is a single crew-to-hospital communication. Updates are
// append-only.
type CrewUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Video     string    `json:"video,omitempty"`
}

// Case is a patient record in the coordination queue.
//
// Severity is set once at triage and is read-only afterwards. DispatchedAt is
// set exactly once, when the case first becomes ambulance_dispatched, and is
// the authoritative time origin for the arrival countdown. StatusChangedAt is
// the dwell origin the engine measures against.
type Case struct {
	ID                 uuid.UUID     `json:"id"`
	Name               string        `json:"name"`
	NHSNumber          string        `json:"nhs_number"`
	Severity           int           `json:"severity"`
	Status             Status        `json:"status"`
	TriageNotes        string        `json:"triage_notes"`
	SymptomDescription string        `json:"symptom_description,omitempty"`
	VideoFilename      string        `json:"video_filename,omitempty"`
	ETAMinutes         *int          `json:"eta_minutes,omitempty"`
	ETATotalMinutes    int           `json:"eta_total_minutes,omitempty"`
	DispatchedAt       *time.Time    `json:"dispatched_at,omitempty"`
	StatusChangedAt    time.Time     `json:"status_changed_at"`
	ResourcePlan       *ResourcePlan `json:"resource_plan,omitempty"`
	Updates            []CrewUpdate  `json:"updates,omitempty"`
	AssessmentPending  bool          `json:"assessment_pending,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Clone returns a deep copy. Snapshots handed out by the store must never
// alias the stored record, so readers cannot observe an in-flight mutation.
func (c *Case) Clone() *Case {
	cp := *c
	if c.ETAMinutes != nil {
		eta := *c.ETAMinutes
		cp.ETAMinutes = &eta
	}
	if c.DispatchedAt != nil {
		d := *c.DispatchedAt
		cp.DispatchedAt = &d
	}
	if c.ResourcePlan != nil {
		plan := *c.ResourcePlan
		plan.SpecialistsNeeded = append([]string(nil), c.ResourcePlan.SpecialistsNeeded...)
		plan.EquipmentRequired = append([]string(nil), c.ResourcePlan.EquipmentRequired...)
		plan.StaffToContact = append([]string(nil), c.ResourcePlan.StaffToContact...)
		plan.AreasToClear = append([]string(nil), c.ResourcePlan.AreasToClear...)
		cp.ResourcePlan = &plan
	}
	if c.Updates != nil {
		cp.Updates = append([]CrewUpdate(nil), c.Updates...)
	}
	return &cp
}

// IntPtr is a helper for the nullable ETA field.
func IntPtr(n int) *int {
	return &n
}
