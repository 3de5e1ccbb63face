package scene

import (
	"errors"
	"fmt"
)

// ErrInvalidMetadata wraps decode and schema failures.
var ErrInvalidMetadata = errors.New("invalid scene metadata")

// MissingRootSectorError means no sector with id 0 was found.
type MissingRootSectorError struct {
	SectorCount int
}

func (e MissingRootSectorError) Error() string {
	return fmt.Sprintf("scene has no root sector (id 0) among %d sectors", e.SectorCount)
}

// DuplicateSectorError means the same id appeared twice.
type DuplicateSectorError struct {
	ID int
}

func (e DuplicateSectorError) Error() string {
	return fmt.Sprintf("duplicate sector id %d", e.ID)
}

// UnknownParentError means a sector references a parent that is not in the scene.
type UnknownParentError struct {
	ID       int
	ParentID int
}

func (e UnknownParentError) Error() string {
	return fmt.Sprintf("sector %d references unknown parent %d", e.ID, e.ParentID)
}

// SectorCycleError means following parent ids from ID never reaches the root.
type SectorCycleError struct {
	ID    int
	Chain []int
}

func (e SectorCycleError) Error() string {
	return fmt.Sprintf("sector %d is part of a parent cycle %v", e.ID, e.Chain)
}

// RootParentError means sector 0 declares a parent.
type RootParentError struct {
	ParentID int
}

func (e RootParentError) Error() string {
	return fmt.Sprintf("root sector 0 declares parent %d", e.ParentID)
}

// DetachedSectorError means a non-root sector declares no parent.
type DetachedSectorError struct {
	ID int
}

func (e DetachedSectorError) Error() string {
	return fmt.Sprintf("sector %d has no parent and is not the root", e.ID)
}

// IsStructural reports whether err makes a scene unusable.
func IsStructural(err error) bool {
	var (
		missing MissingRootSectorError
		dup     DuplicateSectorError
		parent  UnknownParentError
		cycle   SectorCycleError
		rootErr RootParentError
		detach  DetachedSectorError
	)
	return errors.As(err, &missing) || errors.As(err, &dup) ||
		errors.As(err, &parent) || errors.As(err, &cycle) ||
		errors.As(err, &rootErr) || errors.As(err, &detach)
}
