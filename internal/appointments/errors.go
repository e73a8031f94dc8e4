package appointments

import "errors"

var (
	// ErrDoctorNotEligible is returned when the doctor is missing or not verified.
	ErrDoctorNotEligible = errors.New("doctor not found or not verified")

	// ErrSlotConflict is returned when the requested window overlaps an
	// existing non-cancelled appointment for the doctor.
	ErrSlotConflict = errors.New("requested slot conflicts with an existing appointment")

	// ErrNotFound is returned when no appointment row matches the id.
	ErrNotFound = errors.New("appointment not found")

	// ErrTerminalStatus is returned when acting on a cancelled or completed appointment.
	ErrTerminalStatus = errors.New("appointment is in a terminal status")

	// ErrStateConflict is returned when a guarded transition matched no row,
	// meaning a concurrent workflow got there first.
	ErrStateConflict = errors.New("appointment state changed concurrently")

	// ErrInvalidRequest is returned for malformed booking input.
	ErrInvalidRequest = errors.New("invalid booking request")
)
