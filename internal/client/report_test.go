package client

import (
	"bytes"
	"testing"
	"time"

	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/reconcile"
	"github.com/openmined/syftsync/internal/syncop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Write(t *testing.T) {
	report := &Report{}
	report.add("docs", []*reconcile.PlanEntry{
		{
			Type:   syncop.EntryFile,
			Name:   "a.txt",
			Local:  metadata.NewFileMetadata("a.txt", 2048, t0),
			Action: syncop.CopyFileToRemote,
		},
		{
			Type:   syncop.EntryFile,
			Name:   "b.txt",
			Local:  metadata.NewFileMetadata("b.txt", 1, t0),
			Remote: metadata.NewFileMetadata("b.txt", 1, t0),
			Action: syncop.Done,
		},
	})
	report.add("", []*reconcile.PlanEntry{
		{Type: syncop.EntryDirectory, Name: "docs", Action: syncop.SyncDirectory},
	})

	assert.Equal(t, map[syncop.Action]int{
		syncop.CopyFileToRemote: 1,
		syncop.Done:             1,
		syncop.SyncDirectory:    1,
	}, report.Counts())
	require.NotNil(t, report.Find("docs/a.txt"))
	assert.Nil(t, report.Find("a.txt"))

	zone := time.FixedZone("PLUS9", 9*60*60)
	var out bytes.Buffer
	require.NoError(t, report.Write(&out, zone, false))
	assert.Contains(t, out.String(), "docs/a.txt")
	assert.Contains(t, out.String(), "2.0 kB")
	assert.Contains(t, out.String(), "2024-05-06 16:08:09.010 PLUS9")
	assert.NotContains(t, out.String(), "docs/b.txt")
	assert.Contains(t, out.String(), "Done")

	out.Reset()
	require.NoError(t, report.Write(&out, zone, true))
	assert.Contains(t, out.String(), "docs/b.txt")
}
