package reconcile

import (
	"log/slog"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/syncop"
)

// Rule numbers identify the branch a decision was taken in. They show up in
// debug logs.
const (
	ruleInFlight = 1
	ruleSame     = 2

	ruleLocalDeleteLocal  = 31
	ruleLocalDeleteDenied = 32
	ruleLocalCopy         = 33
	ruleLocalCopyDenied   = 34
	ruleLocalAmbiguous    = 35

	ruleRemoteDeleteRemote = 41
	ruleRemoteDeleteDenied = 42
	ruleRemoteCopy         = 43
	ruleRemoteCopyDenied   = 44
	ruleRemoteAmbiguous    = 45

	ruleDifferentToRemote = 51
	ruleDifferentToLocal  = 52
	ruleDifferentDenied   = 53
	ruleDifferentConflict = 54

	ruleDirMatched      = 61
	ruleDirDeleteLocal  = 62
	ruleDirToRemote     = 63
	ruleDirDeleteRemote = 64
	ruleDirToLocal      = 65
	ruleDirDenied       = 66
	ruleDirNeither      = 67

	ruleUnknown = 0
)

// Decide classifies one file pair. An in-flight action is returned unchanged
// so a started transfer or delete is never re-decided.
func Decide(current syncop.Action, direction syncop.Direction, existence syncop.Existence, freshness syncop.Freshness, model access.Model) syncop.Action {
	action, rule := decide(current, direction, existence, freshness, model)
	slog.Debug("decide",
		"rule", rule,
		"action", action,
		"current", current,
		"direction", direction,
		"existence", existence,
		"freshness", freshness,
		"local", model.Local,
		"remote", model.Remote,
	)
	return action
}

func decide(current syncop.Action, direction syncop.Direction, existence syncop.Existence, freshness syncop.Freshness, model access.Model) (syncop.Action, int) {
	if current.InProgress() {
		return current, ruleInFlight
	}

	switch freshness {
	case syncop.FreshnessSame:
		return syncop.Skip, ruleSame

	case syncop.FreshnessLocal:
		if !existence.Remote() && !direction.PushesToRemote() {
			if model.LocalDeleteAllowed() {
				return syncop.DeleteFileFromLocal, ruleLocalDeleteLocal
			}
			return syncop.Skip, ruleLocalDeleteDenied
		}
		if direction.PushesToRemote() {
			if model.RemoteWriteAllowed() {
				return syncop.CopyFileToRemote, ruleLocalCopy
			}
			return syncop.Skip, ruleLocalCopyDenied
		}
		return syncop.Skip, ruleLocalAmbiguous

	case syncop.FreshnessRemote:
		if !existence.Local() && !direction.PullsToLocal() {
			if model.RemoteDeleteAllowed() {
				return syncop.DeleteFileFromRemote, ruleRemoteDeleteRemote
			}
			return syncop.Skip, ruleRemoteDeleteDenied
		}
		if direction.PullsToLocal() {
			if model.LocalWriteAllowed() {
				return syncop.CopyFileToLocal, ruleRemoteCopy
			}
			return syncop.Skip, ruleRemoteCopyDenied
		}
		return syncop.Skip, ruleRemoteAmbiguous

	case syncop.FreshnessDifferent:
		switch direction {
		case syncop.DirectionRemote:
			if model.RemoteWriteAllowed() {
				return syncop.CopyFileToRemote, ruleDifferentToRemote
			}
			return syncop.Skip, ruleDifferentDenied
		case syncop.DirectionLocal:
			if model.LocalWriteAllowed() {
				return syncop.CopyFileToLocal, ruleDifferentToLocal
			}
			return syncop.Skip, ruleDifferentDenied
		}
		// no winner for a two-way conflict
		return syncop.Skip, ruleDifferentConflict
	}

	return syncop.Skip, ruleUnknown
}

// DecideDirectory classifies a directory pair: recurse into it, bring the
// whole subtree over, delete the subtree, or leave it alone.
func DecideDirectory(direction syncop.Direction, existence syncop.Existence, model access.Model) syncop.Action {
	action, rule := decideDirectory(direction, existence, model)
	slog.Debug("decide directory",
		"rule", rule,
		"action", action,
		"direction", direction,
		"existence", existence,
		"local", model.Local,
		"remote", model.Remote,
	)
	return action
}

func decideDirectory(direction syncop.Direction, existence syncop.Existence, model access.Model) (syncop.Action, int) {
	switch existence {
	case syncop.ExistsBoth:
		return syncop.SyncDirectory, ruleDirMatched

	case syncop.ExistsLocal:
		if !direction.PushesToRemote() {
			if model.LocalDirDeleteAllowed() {
				return syncop.DeleteDirectoryFromLocal, ruleDirDeleteLocal
			}
			return syncop.Skip, ruleDirDenied
		}
		if model.RemoteDirWriteAllowed() {
			return syncop.SyncLocalDirToRemote, ruleDirToRemote
		}
		return syncop.Skip, ruleDirDenied

	case syncop.ExistsRemote:
		if !direction.PullsToLocal() {
			if model.RemoteDirDeleteAllowed() {
				return syncop.DeleteDirectoryFromRemote, ruleDirDeleteRemote
			}
			return syncop.Skip, ruleDirDenied
		}
		if model.LocalDirWriteAllowed() {
			return syncop.SyncRemoteDirToLocal, ruleDirToLocal
		}
		return syncop.Skip, ruleDirDenied
	}

	return syncop.Skip, ruleDirNeither
}
