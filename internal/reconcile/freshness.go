package reconcile

import (
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/syncop"
)

// CompareFreshness tells which side of a file pair is newer. Timestamps are
// compared first; equal timestamps fall back to the length and then to the
// hash, but only when both sides carry a hash of the same type. A missing
// hash is inconclusive, never a mismatch.
func CompareFreshness(local, remote *metadata.FileMetadata) syncop.Freshness {
	switch {
	case local == nil && remote == nil:
		return syncop.FreshnessSame
	case remote == nil:
		return syncop.FreshnessLocal
	case local == nil:
		return syncop.FreshnessRemote
	}

	localTime := metadata.NormalizeTime(local.LastModified)
	remoteTime := metadata.NormalizeTime(remote.LastModified)
	switch {
	case localTime.After(remoteTime):
		return syncop.FreshnessLocal
	case localTime.Before(remoteTime):
		return syncop.FreshnessRemote
	}

	if local.Size != remote.Size {
		return syncop.FreshnessDifferent
	}
	if local.HasHash() && remote.HasHash() && local.HashType == remote.HashType && local.Hash != remote.Hash {
		return syncop.FreshnessDifferent
	}
	return syncop.FreshnessSame
}

// directoryFreshness only knows about presence.
func directoryFreshness(existence syncop.Existence) syncop.Freshness {
	switch existence {
	case syncop.ExistsLocal:
		return syncop.FreshnessLocal
	case syncop.ExistsRemote:
		return syncop.FreshnessRemote
	}
	return syncop.FreshnessSame
}
