package emergency

import "github.com/erflow/erflow/internal/domain/patient"

// View projections: pure, stateless filters over store snapshots. Each call
// recomputes from the current snapshot; an empty store yields an empty slice.

// ActiveDispatches lists cases with an ambulance en route, the dispatch
// center's working set.
func ActiveDispatches(s *patient.Store) []*patient.Case {
	return s.Filter(func(c *patient.Case) bool {
		return c.Status == patient.StatusDispatched || c.Status == patient.StatusInTransit
	})
}

// AwaitingApproval lists cases whose resource plan needs a clinician
// sign-off.
func AwaitingApproval(s *patient.Store) []*patient.Case {
	return s.Filter(func(c *patient.Case) bool {
		return c.Status == patient.StatusAwaitingApproval
	})
}

// HighSeverityInbound lists critical cases the preparation center is
// expecting.
func HighSeverityInbound(s *patient.Store) []*patient.Case {
	return s.Filter(func(c *patient.Case) bool {
		return c.Severity >= 8 &&
			(c.Status == patient.StatusInTransit || c.Status == patient.StatusPrepReady)
	})
}

// WaitingRemote lists patients queued for remote care, never dispatched.
func WaitingRemote(s *patient.Store) []*patient.Case {
	return s.Filter(func(c *patient.Case) bool {
		return c.Status == patient.StatusWaitingRemote
	})
}
