package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/syncop"
)

var (
	ErrUnexpectedAction = errors.New("unexpected action")
	ErrInvalidDirection = errors.New("invalid sync direction")
)

// PlanEntry is the decision for one file or directory of a listing level.
type PlanEntry struct {
	Type      syncop.EntryType
	Name      string
	Local     *metadata.FileMetadata
	Remote    *metadata.FileMetadata
	LocalDir  *metadata.DirectoryMetadata
	RemoteDir *metadata.DirectoryMetadata
	Existence syncop.Existence
	Freshness syncop.Freshness
	Access    access.Model
	Action    syncop.Action
}

func (e *PlanEntry) String() string {
	return fmt.Sprintf("%s %s %s (existence=%s freshness=%s)", e.Type, e.Action, e.Name, e.Existence, e.Freshness)
}

// Input is one directory level on both sides. A nil listing means the
// directory does not exist on that side.
type Input struct {
	Direction syncop.Direction
	Recursive bool
	Local     *metadata.DirectoryMetadata
	Remote    *metadata.DirectoryMetadata
	// Index is the local index of the directory. Its entries carry the
	// in-flight actions, including ones for files that no longer exist.
	Index *index.Index
}

// Plan diffs one directory level into entries sorted in execution order:
// deletes before copies before directory syncs before skips.
func Plan(in Input) ([]*PlanEntry, error) {
	switch in.Direction {
	case syncop.DirectionRemote, syncop.DirectionLocal, syncop.DirectionBoth:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirection, in.Direction)
	}

	local := in.Local
	if local == nil {
		local = &metadata.DirectoryMetadata{}
	}
	remote := in.Remote
	if remote == nil {
		remote = &metadata.DirectoryMetadata{}
	}

	var entries []*PlanEntry

	localFiles := local.FileMap()
	remoteFiles := remote.FileMap()
	remaining := mapset.NewThreadUnsafeSet[string]()
	for name := range remoteFiles {
		remaining.Add(name)
	}

	for _, name := range localNames(local, in.Index) {
		localMeta := localFiles[name]
		remoteMeta := remoteFiles[name]
		remaining.Remove(name)

		current := localMeta.CurrentAction()
		if in.Index != nil {
			if indexed := in.Index.Get(name); indexed != nil {
				current = indexed.CurrentAction()
			}
		}
		entries = append(entries, planFile(in.Direction, name, current, localMeta, remoteMeta, local.Access, remote.Access))
	}

	remoteOnly := remaining.ToSlice()
	sort.Strings(remoteOnly)
	for _, name := range remoteOnly {
		entries = append(entries, planFile(in.Direction, name, syncop.Done, nil, remoteFiles[name], local.Access, remote.Access))
	}

	if in.Recursive {
		entries = append(entries, planDirectories(in.Direction, local, remote)...)
	}

	for _, e := range entries {
		if err := checkEntry(e); err != nil {
			slog.Error("plan invariant violated", "entry", e.String(), "error", err)
			return nil, err
		}
	}

	SortEntries(entries)
	return entries, nil
}

// localNames are the names of the local index plus anything listed but not
// yet indexed, sorted.
func localNames(local *metadata.DirectoryMetadata, idx *index.Index) []string {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, f := range local.Files {
		names.Add(f.Name)
	}
	if idx != nil {
		for name := range idx.Files {
			names.Add(name)
		}
	}
	out := names.ToSlice()
	sort.Strings(out)
	return out
}

func planFile(direction syncop.Direction, name string, current syncop.Action, localMeta, remoteMeta *metadata.FileMetadata, localDir, remoteDir access.Bits) *PlanEntry {
	existence := syncop.ExistenceOf(localMeta != nil, remoteMeta != nil)

	var model access.Model
	switch existence {
	case syncop.ExistsBoth:
		model = access.BothSides(localDir.ForFile(true), remoteDir.ForFile(true))
	case syncop.ExistsLocal:
		model = access.LocalOnly(localDir.ForFile(true), remoteDir)
	case syncop.ExistsRemote:
		model = access.RemoteOnly(localDir, remoteDir.ForFile(true))
	default:
		model = access.Model{Local: localDir.Absent(), Remote: remoteDir.Absent()}
	}

	freshness := CompareFreshness(localMeta, remoteMeta)
	return &PlanEntry{
		Type:      syncop.EntryFile,
		Name:      name,
		Local:     localMeta,
		Remote:    remoteMeta,
		Existence: existence,
		Freshness: freshness,
		Access:    model,
		Action:    Decide(current, direction, existence, freshness, model),
	}
}

func planDirectories(direction syncop.Direction, local, remote *metadata.DirectoryMetadata) []*PlanEntry {
	var entries []*PlanEntry

	remaining := make([]*metadata.DirectoryMetadata, len(remote.Directories))
	copy(remaining, remote.Directories)

	for _, localDir := range local.Directories {
		var remoteDir *metadata.DirectoryMetadata
		for i, candidate := range remaining {
			if candidate.Name == localDir.Name {
				remoteDir = candidate
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}

		var model access.Model
		if remoteDir != nil {
			model = access.BothSides(localDir.Access, remoteDir.Access)
		} else {
			model = access.LocalOnly(localDir.Access, remote.Access)
		}
		entries = append(entries, planDirectory(direction, localDir.Name, localDir, remoteDir, model))
	}

	for _, remoteDir := range remaining {
		model := access.RemoteOnly(local.Access, remoteDir.Access)
		entries = append(entries, planDirectory(direction, remoteDir.Name, nil, remoteDir, model))
	}
	return entries
}

func planDirectory(direction syncop.Direction, name string, localDir, remoteDir *metadata.DirectoryMetadata, model access.Model) *PlanEntry {
	existence := syncop.ExistenceOf(localDir != nil, remoteDir != nil)
	return &PlanEntry{
		Type:      syncop.EntryDirectory,
		Name:      name,
		LocalDir:  localDir,
		RemoteDir: remoteDir,
		Existence: existence,
		Freshness: directoryFreshness(existence),
		Access:    model,
		Action:    DecideDirectory(direction, existence, model),
	}
}

func checkEntry(e *PlanEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %s for %s %q", ErrUnexpectedAction, e.Action, e.Type, e.Name)
	}
	switch e.Type {
	case syncop.EntryFile:
		if e.Action.IsDirectory() {
			return fmt.Errorf("%w: %s for file %q", ErrUnexpectedAction, e.Action, e.Name)
		}
	case syncop.EntryDirectory:
		if !e.Action.IsDirectory() && e.Action != syncop.Skip {
			return fmt.Errorf("%w: %s for directory %q", ErrUnexpectedAction, e.Action, e.Name)
		}
	default:
		return fmt.Errorf("%w: unknown entry type %d", ErrUnexpectedAction, e.Type)
	}
	return nil
}

// SortEntries orders entries by action ordinal, then name.
func SortEntries(entries []*PlanEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Type < b.Type
	})
}

// Counts tallies entries per action.
func Counts(entries []*PlanEntry) map[syncop.Action]int {
	counts := make(map[syncop.Action]int)
	for _, e := range entries {
		counts[e.Action]++
	}
	return counts
}
