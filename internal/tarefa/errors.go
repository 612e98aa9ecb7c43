package tarefa

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is the root of user input problems. Nothing is written.
	ErrValidation = errors.New("validation error")
	// ErrScheduling is the root of allocation failures. Nothing is written.
	ErrScheduling = errors.New("scheduling error")
)

type ValidationReason string

const (
	ReasonMissingTitle           ValidationReason = "MissingTitle"
	ReasonNoSubtaskSelected      ValidationReason = "NoSubtaskSelected"
	ReasonDuplicateKind          ValidationReason = "DuplicateKind"
	ReasonUnknownKind            ValidationReason = "UnknownKind"
	ReasonInvalidDate            ValidationReason = "InvalidDate"
	ReasonDeadlineNotBusinessDay ValidationReason = "DeadlineNotBusinessDay"
	ReasonDeadlineInPast         ValidationReason = "DeadlineInPast"
	ReasonTaskNotFound           ValidationReason = "TaskNotFound"
	ReasonInvalidProject         ValidationReason = "InvalidProject"
)

type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
	}
	return "validation: " + string(e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type SchedulingReason string

const (
	ReasonNoAvailableSlot      SchedulingReason = "NoAvailableSlot"
	ReasonCrossesMonthBoundary SchedulingReason = "CrossesMonthBoundary"
	ReasonBeforeToday          SchedulingReason = "BeforeToday"
)

// SchedulingError reports which kind could not be placed and from which base date.
type SchedulingError struct {
	Reason SchedulingReason
	Kind   Kind
	Base   time.Time
	Detail string
}

func (e *SchedulingError) Error() string {
	msg := fmt.Sprintf("scheduling: %s: kind=%s base=%s", e.Reason, e.Kind, FormatDate(e.Base))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SchedulingError) Unwrap() error { return ErrScheduling }

// IsValidation reports whether err is a ValidationError with the given reason.
// An empty reason matches any validation error.
func IsValidation(err error, reason ValidationReason) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return reason == "" || ve.Reason == reason
}

// IsScheduling reports whether err is a SchedulingError with the given reason.
// An empty reason matches any scheduling error.
func IsScheduling(err error, reason SchedulingReason) bool {
	var se *SchedulingError
	if !errors.As(err, &se) {
		return false
	}
	return reason == "" || se.Reason == reason
}
