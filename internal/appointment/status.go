package appointment

type Status string

const (
	StatusScheduled           Status = "scheduled"
	StatusConfirmedByProvider Status = "confirmed_by_provider"
	StatusCompleted           Status = "completed"
	StatusCancelledByPatient  Status = "cancelled_by_patient"
	StatusCancelledByProvider Status = "cancelled_by_provider"
	StatusNoShow              Status = "no_show"
)

var transitions = map[Status][]Status{
	StatusScheduled: {
		StatusConfirmedByProvider,
		StatusCancelledByPatient,
		StatusCancelledByProvider,
	},
	StatusConfirmedByProvider: {
		StatusCompleted,
		StatusCancelledByProvider,
		StatusNoShow,
	},
	StatusCompleted:           nil,
	StatusCancelledByPatient:  nil,
	StatusCancelledByProvider: nil,
	StatusNoShow:              nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) IsCancelled() bool {
	return s == StatusCancelledByPatient || s == StatusCancelledByProvider
}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool {
	return s.Valid() && !s.IsCancelled()
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to against the lifecycle table.
func Transition(from, to Status) error {
	if !to.Valid() {
		return invalidInput("unknown appointment status %q", to)
	}
	if from.IsTerminal() {
		return &TransitionError{From: from, To: to, Reason: "appointment is already finalized"}
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// authorizeTransition applies the role policy on top of the lifecycle table.
func authorizeTransition(appt *Appointment, actor Actor, to Status) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return ErrUnauthorized
		}
		if to != StatusCancelledByPatient {
			return &TransitionError{From: appt.Status, To: to, Reason: "patients may only cancel"}
		}
		if appt.Status == StatusConfirmedByProvider {
			return &TransitionError{From: appt.Status, To: to, Reason: "appointment is confirmed, please contact the clinic"}
		}
	case RoleProvider:
		if appt.ProviderID != actor.ID {
			return ErrUnauthorized
		}
		if to == StatusCancelledByPatient {
			return &TransitionError{From: appt.Status, To: to, Reason: "only the patient may cancel on their behalf"}
		}
		if to == StatusCancelledByProvider && appt.Status != StatusScheduled && !appt.Status.IsTerminal() {
			return &TransitionError{From: appt.Status, To: to, Reason: "providers may only decline scheduled appointments"}
		}
	case RoleClinic:
		if to == StatusCancelledByPatient {
			return &TransitionError{From: appt.Status, To: to, Reason: "only the patient may cancel on their behalf"}
		}
	default:
		return ErrUnauthorized
	}
	return Transition(appt.Status, to)
}
