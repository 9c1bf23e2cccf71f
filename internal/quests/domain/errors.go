package domain

import "fmt"

// QuestNotFoundError indicates that no record matches the requested
// name (and version, when one was given). Absence is a normal query
// outcome, not a systemic failure.
type QuestNotFoundError struct {
	Name    string
	Version string
}

func (e *QuestNotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("quest %q not found", e.Name)
	}
	return fmt.Sprintf("quest %q version %s not found", e.Name, e.Version)
}

// DuplicateVersionError indicates a registration collision: a record
// with the same name and full version already exists. Callers should
// treat it as "already exists" rather than retry.
type DuplicateVersionError struct {
	Name    string
	Version string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("quest %q version %s is already registered", e.Name, e.Version)
}
