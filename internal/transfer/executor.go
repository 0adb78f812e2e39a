package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftsync/internal/endpoint"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/syncop"
)

const DefaultBlockSize = 1 << 20

var (
	ErrUnexpectedAction = errors.New("unexpected action")
	ErrInvalidBlockHash = errors.New("invalid block hash")

	errSourceMissing = errors.New("transfer source missing")
)

type Config struct {
	BlockSize int64
}

// Stats describes one finished file transfer.
type Stats struct {
	Bytes         int64
	Blocks        int
	ChunksSkipped int
	Resumed       bool
}

// Executor runs the file and directory actions of a plan between the local
// and the remote endpoint. Progress is persisted in the local index only.
type Executor struct {
	local     endpoint.Endpoint
	remote    endpoint.Endpoint
	store     *index.Store
	blockSize int64
}

func NewExecutor(local, remote endpoint.Endpoint, store *index.Store, cfg Config) *Executor {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	return &Executor{
		local:     local,
		remote:    remote,
		store:     store,
		blockSize: cfg.BlockSize,
	}
}

// endpoints returns source and destination of a copy or the target of a delete.
func (x *Executor) endpoints(action syncop.Action) (src, dst endpoint.Endpoint) {
	if action.TargetsLocal() {
		return x.remote, x.local
	}
	return x.local, x.remote
}

// SyncFile copies source in dir in the direction of action, resuming from
// the completed chunks of a transfer that was interrupted earlier.
func (x *Executor) SyncFile(ctx context.Context, dir string, source *metadata.FileMetadata, action syncop.Action) (*Stats, error) {
	settled := action.Settled()
	if !settled.IsCopy() {
		return nil, fmt.Errorf("%w: %s is not a copy", ErrUnexpectedAction, action)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s without source metadata", ErrUnexpectedAction, action)
	}

	pending := settled.Pending()
	name := source.Name
	rel := path.Join(dir, name)
	src, dst := x.endpoints(settled)
	start := time.Now()

	cm, resumed, err := x.checkpointStart(dir, source, pending)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Resumed: resumed}
	if resumed {
		stats.ChunksSkipped = cm.Completed()
		slog.Info("transfer resuming", "path", rel, "action", settled, "chunks", cm.NumChunks, "completed", stats.ChunksSkipped)
	}

	for i := 0; i < cm.NumChunks; i++ {
		if cm.IsComplete(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := x.copyChunk(ctx, src, dst, dir, source, cm, i, stats); err != nil {
			if errors.Is(err, errSourceMissing) {
				x.abandon(dir, name, pending)
			}
			return stats, err
		}

		cm.SetComplete(i)
		if err := x.checkpoint(dir, name, cm); err != nil {
			return stats, err
		}
	}

	// finalize: truncate to the true length and stamp the mtime
	resp, err := dst.WriteBlock(ctx, &endpoint.WriteBlockRequest{
		Dir:       dir,
		Name:      name,
		Offset:    source.Size,
		EOF:       true,
		Timestamp: metadata.NormalizeTime(source.LastModified),
	})
	if err != nil {
		return stats, err
	}
	if resp.Length != 0 {
		return stats, endpoint.Errorf(endpoint.KindIntegrity, "finalize", rel, "%w: final write reported %d bytes", ErrInvalidBlockHash, resp.Length)
	}

	if err := x.checkpointDone(dir, source, settled); err != nil {
		return stats, err
	}

	slog.Info("transfer done",
		"path", rel,
		"action", settled,
		"size", humanize.Bytes(uint64(source.Size)),
		"blocks", stats.Blocks,
		"resumed", stats.Resumed,
		"took", time.Since(start),
	)
	return stats, nil
}

func (x *Executor) copyChunk(ctx context.Context, src, dst endpoint.Endpoint, dir string, source *metadata.FileMetadata, cm *metadata.ChunkMap, chunk int, stats *Stats) error {
	rel := path.Join(dir, source.Name)
	chunkStart := int64(chunk) * cm.ChunkBytes()

	for b := int64(0); b < cm.ChunkSize; b++ {
		offset := chunkStart + b*cm.BlockSize
		if offset >= source.Size {
			return nil
		}

		read, err := src.ReadBlock(ctx, &endpoint.ReadBlockRequest{
			Dir:       dir,
			Name:      source.Name,
			Offset:    offset,
			BlockSize: cm.BlockSize,
		})
		if errors.Is(err, endpoint.ErrNotFound) {
			return fmt.Errorf("%w: %w", errSourceMissing, err)
		}
		if err != nil {
			return err
		}
		if read.Length == 0 {
			return endpoint.Errorf(endpoint.KindIO, "read block", rel, "source shrank below %d bytes", offset)
		}

		written, err := dst.WriteBlock(ctx, &endpoint.WriteBlockRequest{
			Dir:    dir,
			Name:   source.Name,
			Offset: offset,
			Length: read.Length,
			Data:   read.Data,
		})
		if err != nil {
			return err
		}
		if written.CRC32 != read.CRC32 || written.Length != read.Length {
			slog.Error("block checksum mismatch",
				"path", rel,
				"offset", offset,
				"read_crc", read.CRC32,
				"write_crc", written.CRC32,
				"read_len", read.Length,
				"write_len", written.Length,
			)
			return endpoint.Errorf(endpoint.KindIntegrity, "write block", rel, "%w at offset %d", ErrInvalidBlockHash, offset)
		}

		stats.Blocks++
		stats.Bytes += read.Length
		if read.EOF {
			if end := offset + read.Length; end < source.Size {
				return endpoint.Errorf(endpoint.KindIO, "read block", rel, "source shrank to %d of %d bytes", end, source.Size)
			}
			return nil
		}
	}
	return nil
}

// checkpointStart loads or creates the chunk plan and persists the pending
// action before any byte moves. A saved plan is reused only when it belongs
// to the same action and still covers the source.
func (x *Executor) checkpointStart(dir string, source *metadata.FileMetadata, pending syncop.Action) (*metadata.ChunkMap, bool, error) {
	var (
		cm      *metadata.ChunkMap
		resumed bool
	)

	err := x.store.Update(dir, source.Name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			cur = &metadata.FileMetadata{Name: source.Name}
			if !pending.TargetsLocal() {
				// pushing a local file the index has not seen yet
				cur.SetStat(source.Size, source.LastModified)
				cur.SetHash(source.HashType, source.Hash)
			}
		}

		if saved := cur.Chunks; saved != nil && saved.Action == pending {
			if saved.Covers(source.Size) {
				cm = saved.Clone()
				resumed = true
				return cur, nil
			}
			slog.Warn("transfer plan no longer covers source, restarting",
				"path", path.Join(dir, source.Name), "size", source.Size, "capacity", saved.Capacity())
		}

		fresh, err := metadata.NewChunkMap(source.Size, x.blockSize)
		if err != nil {
			return nil, err
		}
		fresh.Reset(pending)
		cur.Chunks = fresh
		cm = fresh.Clone()
		return cur, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint %s: %w", path.Join(dir, source.Name), err)
	}
	return cm, resumed, nil
}

func (x *Executor) checkpoint(dir, name string, cm *metadata.ChunkMap) error {
	err := x.store.Update(dir, name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			cur = &metadata.FileMetadata{Name: name}
		}
		cur.Chunks = cm.Clone()
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", path.Join(dir, name), err)
	}
	return nil
}

// checkpointDone marks the transfer finished. After a copy to local the local
// entry takes over the source's stat and hash.
func (x *Executor) checkpointDone(dir string, source *metadata.FileMetadata, settled syncop.Action) error {
	err := x.store.Update(dir, source.Name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			cur = &metadata.FileMetadata{Name: source.Name}
		}
		if cur.Chunks != nil {
			cur.Chunks.Action = syncop.Done
		}
		if settled == syncop.CopyFileToLocal {
			cur.SetStat(source.Size, source.LastModified)
			if source.HasHash() {
				cur.SetHash(source.HashType, source.Hash)
			}
		}
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", path.Join(dir, source.Name), err)
	}
	return nil
}

// abandon clears the pending action of a transfer whose source is gone.
func (x *Executor) abandon(dir, name string, pending syncop.Action) {
	err := x.store.Update(dir, name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			return nil, nil
		}
		if cur.Chunks != nil && cur.Chunks.Action == pending {
			cur.Chunks = nil
		}
		return cur, nil
	})
	if err != nil {
		slog.Warn("clear pending transfer", "path", path.Join(dir, name), "error", err)
		return
	}
	slog.Warn("transfer source vanished, pending action cleared", "path", path.Join(dir, name), "action", pending)
}

// Abandon clears the pending action recorded for name. It is used when the
// source of an in-flight copy no longer exists.
func (x *Executor) Abandon(dir, name string, action syncop.Action) {
	x.abandon(dir, name, action.Settled().Pending())
}

// DeleteFile deletes name in dir on the side action targets. The pending
// delete is persisted first and cleared once the target confirmed it.
func (x *Executor) DeleteFile(ctx context.Context, dir, name string, action syncop.Action) error {
	settled := action.Settled()
	if settled != syncop.DeleteFileFromLocal && settled != syncop.DeleteFileFromRemote {
		return fmt.Errorf("%w: %s is not a file delete", ErrUnexpectedAction, action)
	}
	rel := path.Join(dir, name)
	_, target := x.endpoints(settled)
	pending := settled.Pending()

	err := x.store.Update(dir, name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			cur = &metadata.FileMetadata{Name: name}
		}
		cur.Chunks = &metadata.ChunkMap{BlockSize: x.blockSize, Action: pending}
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", rel, err)
	}

	err = target.DeleteFile(ctx, &endpoint.DeleteFileRequest{Dir: dir, Name: name})
	if errors.Is(err, endpoint.ErrNotFound) {
		slog.Debug("delete target already gone", "path", rel)
	} else if err != nil {
		return err
	}

	if err := x.store.DeleteIndexItem(dir, name); err != nil {
		return fmt.Errorf("clear %s: %w", rel, err)
	}
	slog.Info("file deleted", "path", rel, "action", settled)
	return nil
}

// DeleteDirectory removes the whole subtree at rel on the side action
// targets. A directory delete is idempotent, so it carries no checkpoint.
func (x *Executor) DeleteDirectory(ctx context.Context, rel string, action syncop.Action) error {
	if action != syncop.DeleteDirectoryFromLocal && action != syncop.DeleteDirectoryFromRemote {
		return fmt.Errorf("%w: %s is not a directory delete", ErrUnexpectedAction, action)
	}
	_, target := x.endpoints(action)

	err := target.DeleteDirectory(ctx, &endpoint.DeleteDirectoryRequest{Path: rel, Files: true, Recursive: true})
	if errors.Is(err, endpoint.ErrNotFound) {
		slog.Debug("delete target already gone", "path", rel)
	} else if err != nil {
		return err
	}

	// the parent's index may still list in-flight entries below rel
	x.store.ForgetTree(rel)
	slog.Info("directory deleted", "path", rel, "action", action)
	return nil
}

// MakeDirectory creates rel on the side a directory sync action targets.
func (x *Executor) MakeDirectory(ctx context.Context, rel string, action syncop.Action) error {
	if action != syncop.SyncLocalDirToRemote && action != syncop.SyncRemoteDirToLocal {
		return fmt.Errorf("%w: %s does not create a directory", ErrUnexpectedAction, action)
	}
	_, target := x.endpoints(action)
	return target.MakeDirectory(ctx, &endpoint.MakeDirectoryRequest{Path: rel})
}
