package reconcile

import (
	"testing"
	"time"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/syncop"
	"github.com/stretchr/testify/assert"
)

var (
	directions  = []syncop.Direction{syncop.DirectionRemote, syncop.DirectionLocal, syncop.DirectionBoth}
	existences  = []syncop.Existence{syncop.ExistsNeither, syncop.ExistsLocal, syncop.ExistsRemote, syncop.ExistsBoth}
	freshnesses = []syncop.Freshness{syncop.FreshnessSame, syncop.FreshnessLocal, syncop.FreshnessRemote, syncop.FreshnessDifferent}
	currents    = []syncop.Action{
		syncop.Done, syncop.Skip,
		syncop.CopyingFileToLocal, syncop.CopyingFileToRemote,
		syncop.DeletingFileFromLocal, syncop.DeletingFileFromRemote,
	}
)

// every 8 bit pattern on both sides would be 65536 models per input; a
// stride keeps the product small while hitting every flag on and off
func sampleModels() []access.Model {
	var models []access.Model
	for l := 0; l < 256; l += 7 {
		for r := 0; r < 256; r += 11 {
			models = append(models, access.Model{Local: access.Bits(l), Remote: access.Bits(r)})
		}
	}
	models = append(models,
		access.Model{Local: access.All, Remote: access.All},
		access.Model{},
	)
	return models
}

func TestDecide_TotalAndIdempotent(t *testing.T) {
	models := sampleModels()
	for _, current := range currents {
		for _, d := range directions {
			for _, e := range existences {
				for _, f := range freshnesses {
					for _, m := range models {
						a1 := Decide(current, d, e, f, m)
						a2 := Decide(current, d, e, f, m)
						if !assert.True(t, a1.Valid(), "%s %s %s %s %v", current, d, e, f, m) {
							return
						}
						if !assert.Equal(t, a1, a2) {
							return
						}
						if !assert.False(t, a1.IsDirectory(), "file decision %s", a1) {
							return
						}
						if current.InProgress() {
							assert.Equal(t, current, a1)
						}
					}
				}
			}
		}
	}
}

func TestDecideDirectory_Total(t *testing.T) {
	for _, d := range directions {
		for _, e := range existences {
			for _, m := range sampleModels() {
				a := DecideDirectory(d, e, m)
				assert.True(t, a.IsDirectory() || a == syncop.Skip, "%s %s %v -> %s", d, e, m, a)
				assert.Equal(t, a, DecideDirectory(d, e, m))
			}
		}
	}
}

func TestDecide_Rules(t *testing.T) {
	all := access.Model{Local: access.All, Remote: access.All}
	readOnly := access.Model{
		Local:  access.All.Mask(access.Policy{Read: true}),
		Remote: access.All.Mask(access.Policy{Read: true}),
	}
	localOnly := access.LocalOnly(access.All, access.All)
	remoteOnly := access.RemoteOnly(access.All, access.All)

	tests := []struct {
		name      string
		current   syncop.Action
		direction syncop.Direction
		existence syncop.Existence
		freshness syncop.Freshness
		model     access.Model
		want      syncop.Action
	}{
		{"in flight copy is kept", syncop.CopyingFileToRemote, syncop.DirectionLocal, syncop.ExistsBoth, syncop.FreshnessSame, all, syncop.CopyingFileToRemote},
		{"in flight delete is kept", syncop.DeletingFileFromLocal, syncop.DirectionRemote, syncop.ExistsLocal, syncop.FreshnessLocal, readOnly, syncop.DeletingFileFromLocal},
		{"same skips", syncop.Done, syncop.DirectionBoth, syncop.ExistsBoth, syncop.FreshnessSame, all, syncop.Skip},

		{"local only, pull deletes local", syncop.Done, syncop.DirectionLocal, syncop.ExistsLocal, syncop.FreshnessLocal, localOnly, syncop.DeleteFileFromLocal},
		{"local only, pull without delete skips", syncop.Done, syncop.DirectionLocal, syncop.ExistsLocal, syncop.FreshnessLocal, access.LocalOnly(access.All.Mask(access.Policy{Read: true, Write: true}), access.All), syncop.Skip},
		{"local only, push copies", syncop.Done, syncop.DirectionRemote, syncop.ExistsLocal, syncop.FreshnessLocal, localOnly, syncop.CopyFileToRemote},
		{"local only, both copies", syncop.Done, syncop.DirectionBoth, syncop.ExistsLocal, syncop.FreshnessLocal, localOnly, syncop.CopyFileToRemote},
		{"local newer, push denied", syncop.Done, syncop.DirectionRemote, syncop.ExistsBoth, syncop.FreshnessLocal, readOnly, syncop.Skip},
		{"local newer, pull is ambiguous", syncop.Done, syncop.DirectionLocal, syncop.ExistsBoth, syncop.FreshnessLocal, all, syncop.Skip},

		{"remote only, push deletes remote", syncop.Done, syncop.DirectionRemote, syncop.ExistsRemote, syncop.FreshnessRemote, remoteOnly, syncop.DeleteFileFromRemote},
		{"remote only, push without delete skips", syncop.Done, syncop.DirectionRemote, syncop.ExistsRemote, syncop.FreshnessRemote, access.RemoteOnly(access.All, access.All.Mask(access.Policy{Read: true})), syncop.Skip},
		{"remote only, pull copies", syncop.Done, syncop.DirectionLocal, syncop.ExistsRemote, syncop.FreshnessRemote, remoteOnly, syncop.CopyFileToLocal},
		{"remote newer, both copies", syncop.Done, syncop.DirectionBoth, syncop.ExistsBoth, syncop.FreshnessRemote, all, syncop.CopyFileToLocal},
		{"remote newer, push is ambiguous", syncop.Done, syncop.DirectionRemote, syncop.ExistsBoth, syncop.FreshnessRemote, all, syncop.Skip},

		{"different, local authoritative", syncop.Done, syncop.DirectionRemote, syncop.ExistsBoth, syncop.FreshnessDifferent, all, syncop.CopyFileToRemote},
		{"different, remote authoritative", syncop.Done, syncop.DirectionLocal, syncop.ExistsBoth, syncop.FreshnessDifferent, all, syncop.CopyFileToLocal},
		{"different, remote authoritative denied", syncop.Done, syncop.DirectionLocal, syncop.ExistsBoth, syncop.FreshnessDifferent, readOnly, syncop.Skip},
		{"different, both is a conflict", syncop.Done, syncop.DirectionBoth, syncop.ExistsBoth, syncop.FreshnessDifferent, all, syncop.Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.current, tt.direction, tt.existence, tt.freshness, tt.model)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideDirectory_Rules(t *testing.T) {
	noDelete := access.All.Mask(access.Policy{Read: true, Write: true})
	noWrite := access.All.Mask(access.Policy{Read: true, Delete: true})

	tests := []struct {
		name      string
		direction syncop.Direction
		existence syncop.Existence
		model     access.Model
		want      syncop.Action
	}{
		{"matched recurses", syncop.DirectionLocal, syncop.ExistsBoth, access.Model{}, syncop.SyncDirectory},
		{"local only, push", syncop.DirectionRemote, syncop.ExistsLocal, access.LocalOnly(access.All, access.All), syncop.SyncLocalDirToRemote},
		{"local only, push denied", syncop.DirectionRemote, syncop.ExistsLocal, access.LocalOnly(access.All, noWrite), syncop.Skip},
		{"local only, pull deletes", syncop.DirectionLocal, syncop.ExistsLocal, access.LocalOnly(access.All, access.All), syncop.DeleteDirectoryFromLocal},
		{"local only, pull delete denied", syncop.DirectionLocal, syncop.ExistsLocal, access.LocalOnly(noDelete, access.All), syncop.Skip},
		{"remote only, pull", syncop.DirectionLocal, syncop.ExistsRemote, access.RemoteOnly(access.All, access.All), syncop.SyncRemoteDirToLocal},
		{"remote only, both", syncop.DirectionBoth, syncop.ExistsRemote, access.RemoteOnly(access.All, access.All), syncop.SyncRemoteDirToLocal},
		{"remote only, push deletes", syncop.DirectionRemote, syncop.ExistsRemote, access.RemoteOnly(access.All, access.All), syncop.DeleteDirectoryFromRemote},
		{"remote only, push delete denied", syncop.DirectionRemote, syncop.ExistsRemote, access.RemoteOnly(access.All, noDelete), syncop.Skip},
		{"neither", syncop.DirectionBoth, syncop.ExistsNeither, access.Model{Local: access.All, Remote: access.All}, syncop.Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideDirectory(tt.direction, tt.existence, tt.model))
		})
	}
}

func TestCompareFreshness(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	meta := func(size int64, mtime time.Time, hashType, hash string) *metadata.FileMetadata {
		f := metadata.NewFileMetadata("f", size, mtime)
		f.SetHash(hashType, hash)
		return f
	}
	berlin := time.FixedZone("CET", 3600)

	tests := []struct {
		name          string
		local, remote *metadata.FileMetadata
		want          syncop.Freshness
	}{
		{"both absent", nil, nil, syncop.FreshnessSame},
		{"remote absent", meta(1, t0, "", ""), nil, syncop.FreshnessLocal},
		{"local absent", nil, meta(1, t0, "", ""), syncop.FreshnessRemote},
		{"local newer", meta(1, t0.Add(time.Second), "", ""), meta(1, t0, "", ""), syncop.FreshnessLocal},
		{"remote newer", meta(1, t0, "", ""), meta(1, t0.Add(time.Millisecond), "", ""), syncop.FreshnessRemote},
		{"same instant in another zone", meta(1, t0.In(berlin), "", ""), meta(1, t0, "", ""), syncop.FreshnessSame},
		{"sub millisecond difference is equal", meta(1, t0.Add(300*time.Microsecond), "", ""), meta(1, t0, "", ""), syncop.FreshnessSame},
		{"length differs", meta(1, t0, "", ""), meta(2, t0, "", ""), syncop.FreshnessDifferent},
		{"hash differs", meta(1, t0, "md5", "a"), meta(1, t0, "md5", "b"), syncop.FreshnessDifferent},
		{"hash equal", meta(1, t0, "md5", "a"), meta(1, t0, "md5", "a"), syncop.FreshnessSame},
		{"hash missing on one side", meta(1, t0, "md5", "a"), meta(1, t0, "", ""), syncop.FreshnessSame},
		{"hash types differ", meta(1, t0, "md5", "a"), meta(1, t0, "sha1", "b"), syncop.FreshnessSame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareFreshness(tt.local, tt.remote))
		})
	}
}
