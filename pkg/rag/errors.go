package rag

import "errors"

// Error classes shared by the retrieval and memory packages. Callers match
// them with errors.Is; concrete errors wrap one of these.
var (
	// ErrInput marks malformed text or arguments. Handled where it occurs.
	ErrInput = errors.New("invalid input")

	// ErrCollaboratorUnavailable marks a failed search, summarizer or store call.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrStateConflict marks concurrent mutation of one session.
	ErrStateConflict = errors.New("session state conflict")

	// ErrCapacityExceeded means the mandatory context cannot fit the token budget.
	ErrCapacityExceeded = errors.New("context capacity exceeded")

	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrDocumentNotFound = errors.New("document not found")
)
