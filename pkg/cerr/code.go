package cerr

import "net/http"

// Code classifies an error for transport mapping. The set mirrors the
// domain taxonomy: validation, not-found, illegal state transitions,
// unreachable external collaborators, and internal failures.
type Code int

const (
	OK Code = iota
	Canceled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	FailedPrecondition
	Unavailable
	Internal
)

var codeNames = map[Code]string{
	OK:                 "ok",
	Canceled:           "canceled",
	Unknown:            "unknown",
	InvalidArgument:    "invalid_argument",
	DeadlineExceeded:   "deadline_exceeded",
	NotFound:           "not_found",
	AlreadyExists:      "already_exists",
	FailedPrecondition: "failed_precondition",
	Unavailable:        "unavailable",
	Internal:           "internal",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// HTTPCode maps a Code to the status the REST contract promises:
// 400 for validation, 404 for unknown ids, 409 for transitions that are
// not legal from the current state, 502/504 for dead collaborators.
func (c Code) HTTPCode() int {
	switch c {
	case OK:
		return http.StatusOK
	case Canceled:
		return 499
	case InvalidArgument:
		return http.StatusBadRequest
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case FailedPrecondition:
		return http.StatusConflict
	case Unavailable:
		return http.StatusBadGateway
	case Unknown, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
