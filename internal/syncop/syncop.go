package syncop

import (
	"fmt"
	"strings"
)

// Action is the decided outcome for a single plan entry.
// The ordinal order is the execution order of a plan.
type Action uint8

const (
	DeletingFileFromLocal Action = iota
	DeletingFileFromRemote
	DeleteFileFromLocal
	DeleteFileFromRemote
	DeleteDirectoryFromLocal
	DeleteDirectoryFromRemote
	CopyingFileToLocal
	CopyingFileToRemote
	CopyFileToLocal
	CopyFileToRemote
	SyncRemoteDirToLocal
	SyncLocalDirToRemote
	SyncDirectory
	Skip
	Done

	actionCount
)

var actionNames = []string{
	"DeletingFileFromLocal",
	"DeletingFileFromRemote",
	"DeleteFileFromLocal",
	"DeleteFileFromRemote",
	"DeleteDirectoryFromLocal",
	"DeleteDirectoryFromRemote",
	"CopyingFileToLocal",
	"CopyingFileToRemote",
	"CopyFileToLocal",
	"CopyFileToRemote",
	"SyncRemoteDirToLocal",
	"SyncLocalDirToRemote",
	"SyncDirectory",
	"Skip",
	"Done",
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
	return actionNames[a]
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a < actionCount
}

// InProgress reports whether a marks a transfer or delete that was started
// and not yet confirmed.
func (a Action) InProgress() bool {
	switch a {
	case DeletingFileFromLocal, DeletingFileFromRemote, CopyingFileToLocal, CopyingFileToRemote:
		return true
	}
	return false
}

// Pending returns the in-flight variant of a file action. Actions without an
// in-flight variant are returned unchanged.
func (a Action) Pending() Action {
	switch a {
	case DeleteFileFromLocal:
		return DeletingFileFromLocal
	case DeleteFileFromRemote:
		return DeletingFileFromRemote
	case CopyFileToLocal:
		return CopyingFileToLocal
	case CopyFileToRemote:
		return CopyingFileToRemote
	}
	return a
}

// Settled is the inverse of Pending.
func (a Action) Settled() Action {
	switch a {
	case DeletingFileFromLocal:
		return DeleteFileFromLocal
	case DeletingFileFromRemote:
		return DeleteFileFromRemote
	case CopyingFileToLocal:
		return CopyFileToLocal
	case CopyingFileToRemote:
		return CopyFileToRemote
	}
	return a
}

func (a Action) IsCopy() bool {
	switch a.Settled() {
	case CopyFileToLocal, CopyFileToRemote:
		return true
	}
	return false
}

func (a Action) IsDelete() bool {
	switch a.Settled() {
	case DeleteFileFromLocal, DeleteFileFromRemote, DeleteDirectoryFromLocal, DeleteDirectoryFromRemote:
		return true
	}
	return false
}

// IsDirectory reports whether a only applies to directory entries.
func (a Action) IsDirectory() bool {
	switch a {
	case DeleteDirectoryFromLocal, DeleteDirectoryFromRemote, SyncRemoteDirToLocal, SyncLocalDirToRemote, SyncDirectory:
		return true
	}
	return false
}

// TargetsLocal reports whether a mutates the local side.
func (a Action) TargetsLocal() bool {
	switch a.Settled() {
	case DeleteFileFromLocal, DeleteDirectoryFromLocal, CopyFileToLocal, SyncRemoteDirToLocal:
		return true
	}
	return false
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("unknown action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Direction names the side that is brought up to date by a sync.
type Direction uint8

const (
	// DirectionRemote makes the remote match the local side (local is authoritative).
	DirectionRemote Direction = iota + 1
	// DirectionLocal makes the local side match the remote (remote is authoritative).
	DirectionLocal
	// DirectionBoth propagates newer files both ways.
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionRemote:
		return "remote"
	case DirectionLocal:
		return "local"
	case DirectionBoth:
		return "both"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// PushesToRemote reports whether local changes are copied to the remote.
func (d Direction) PushesToRemote() bool {
	return d == DirectionRemote || d == DirectionBoth
}

// PullsToLocal reports whether remote changes are copied to the local side.
func (d Direction) PullsToLocal() bool {
	return d == DirectionLocal || d == DirectionBoth
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "push", "up":
		return DirectionRemote, nil
	case "local", "pull", "down":
		return DirectionLocal, nil
	case "both", "two-way", "bidirectional":
		return DirectionBoth, nil
	}
	return 0, fmt.Errorf("invalid sync direction %q. Must be 'local', 'remote' or 'both'", s)
}

// Existence records which side(s) currently have an entry.
type Existence uint8

const (
	ExistsNeither Existence = iota
	ExistsLocal
	ExistsRemote
	ExistsBoth
)

// ExistenceOf derives the Existence from per-side presence.
func ExistenceOf(local, remote bool) Existence {
	switch {
	case local && remote:
		return ExistsBoth
	case local:
		return ExistsLocal
	case remote:
		return ExistsRemote
	}
	return ExistsNeither
}

func (e Existence) Local() bool  { return e == ExistsLocal || e == ExistsBoth }
func (e Existence) Remote() bool { return e == ExistsRemote || e == ExistsBoth }

func (e Existence) String() string {
	switch e {
	case ExistsNeither:
		return "Neither"
	case ExistsLocal:
		return "Local"
	case ExistsRemote:
		return "Remote"
	case ExistsBoth:
		return "Both"
	}
	return fmt.Sprintf("Existence(%d)", uint8(e))
}

// Freshness is the outcome of comparing the two sides of an entry.
type Freshness uint8

const (
	// FreshnessSame means both sides are considered identical.
	FreshnessSame Freshness = iota
	// FreshnessLocal means local is newer, or the remote is absent.
	FreshnessLocal
	// FreshnessRemote means remote is newer, or the local side is absent.
	FreshnessRemote
	// FreshnessDifferent means both exist and diverged without a temporal order.
	FreshnessDifferent
)

func (f Freshness) String() string {
	switch f {
	case FreshnessSame:
		return "Same"
	case FreshnessLocal:
		return "Local"
	case FreshnessRemote:
		return "Remote"
	case FreshnessDifferent:
		return "Different"
	}
	return fmt.Sprintf("Freshness(%d)", uint8(f))
}

// EntryType distinguishes file and directory plan entries.
type EntryType uint8

const (
	EntryFile EntryType = iota
	EntryDirectory
)

func (t EntryType) String() string {
	if t == EntryDirectory {
		return "Directory"
	}
	return "File"
}
