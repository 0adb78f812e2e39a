package client

import (
	"fmt"
	"io"
	"path"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/reconcile"
	"github.com/openmined/syftsync/internal/syncop"
)

const reportTimeFormat = "2006-01-02 15:04:05.000 MST"

// ReportEntry is one planned entry with the directory it was planned in.
type ReportEntry struct {
	Dir string
	*reconcile.PlanEntry
}

// Path is the entry's path relative to the sync root.
func (e ReportEntry) Path() string {
	return path.Join(e.Dir, e.Name)
}

// Report is the outcome of a plan run, in walk order.
type Report struct {
	Entries []ReportEntry
}

func (r *Report) add(dir string, entries []*reconcile.PlanEntry) {
	for _, e := range entries {
		r.Entries = append(r.Entries, ReportEntry{Dir: dir, PlanEntry: e})
	}
}

// Counts tallies the entries per action.
func (r *Report) Counts() map[syncop.Action]int {
	counts := make(map[syncop.Action]int)
	for _, e := range r.Entries {
		counts[e.Action]++
	}
	return counts
}

// Find returns the entry planned for rel, or nil.
func (r *Report) Find(rel string) *ReportEntry {
	for i := range r.Entries {
		if r.Entries[i].Path() == rel {
			return &r.Entries[i]
		}
	}
	return nil
}

// Write prints the report as a table with times shown in zone. Entries
// that are up to date are left out unless all is set.
func (r *Report) Write(w io.Writer, zone *time.Location, all bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tACTION\tPATH\tLOCAL SIZE\tREMOTE SIZE\tLOCAL MODIFIED\tREMOTE MODIFIED")

	for _, e := range r.Entries {
		if e.Action == syncop.Done && !all {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Type, e.Action, e.Path(),
			sizeOf(e.Local), sizeOf(e.Remote),
			timeOf(e.Local, zone), timeOf(e.Remote, zone))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := r.Counts()
	actions := make([]syncop.Action, 0, len(counts))
	for a := range counts {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	fmt.Fprintln(w)
	for _, a := range actions {
		if _, err := fmt.Fprintf(w, "%-26s %d\n", a, counts[a]); err != nil {
			return err
		}
	}
	return nil
}

func sizeOf(f *metadata.FileMetadata) string {
	if f == nil {
		return "-"
	}
	return humanize.Bytes(uint64(f.Size))
}

func timeOf(f *metadata.FileMetadata, zone *time.Location) string {
	if f == nil || f.LastModified.IsZero() {
		return "-"
	}
	return f.LastModified.In(zone).Format(reportTimeFormat)
}
