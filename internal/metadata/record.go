package metadata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openmined/syftsync/internal/syncop"
)

const (
	// IndexFileName is the reserved per-directory index file. It never shows
	// up in listings or in the index itself.
	IndexFileName = ".syftsync.index"

	fieldSep = "|"
	chunkSep = ","
	numField = 6
)

var (
	ErrInvalidRecord = errors.New("invalid index record")
	ErrInvalidName   = errors.New("name cannot be stored in an index record")
)

// ValidName reports whether name can be stored in an index record.
func ValidName(name string) bool {
	return name != "" && name != IndexFileName && !strings.ContainsAny(name, fieldSep+"\n\r")
}

// FormatRecord encodes one index line:
//
//	name|lastModified|length|hashType|hash|blockSize,chunkSize,numChunks,flagsHex,action
func FormatRecord(f *FileMetadata) (string, error) {
	if !ValidName(f.Name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, f.Name)
	}
	if strings.ContainsAny(f.Hash+f.HashType, fieldSep+"\n\r") {
		return "", fmt.Errorf("%w: hash of %q", ErrInvalidRecord, f.Name)
	}

	chunks := ""
	if f.Chunks != nil {
		chunks = f.Chunks.String()
	}

	mtime := int64(0)
	if !f.LastModified.IsZero() {
		mtime = f.LastModified.UnixMilli()
	}

	return strings.Join([]string{
		f.Name,
		strconv.FormatInt(mtime, 10),
		strconv.FormatInt(f.Size, 10),
		f.HashType,
		f.Hash,
		chunks,
	}, fieldSep), nil
}

// ParseRecord decodes a line written by FormatRecord.
func ParseRecord(line string) (*FileMetadata, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) != numField {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidRecord, numField, len(fields))
	}
	if !ValidName(fields[0]) {
		return nil, fmt.Errorf("%w: bad name %q", ErrInvalidRecord, fields[0])
	}

	mtime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lastModified: %w", ErrInvalidRecord, err)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: length %q", ErrInvalidRecord, fields[2])
	}

	f := &FileMetadata{
		Name:     fields[0],
		Size:     size,
		HashType: fields[3],
		Hash:     fields[4],
	}
	if mtime != 0 {
		f.LastModified = time.UnixMilli(mtime).UTC()
	}
	if fields[5] != "" {
		if f.Chunks, err = parseChunkMap(fields[5]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func parseChunkMap(s string) (*ChunkMap, error) {
	parts := strings.Split(s, chunkSep)
	// older records carry no action tag
	if len(parts) != 4 && len(parts) != 5 {
		return nil, fmt.Errorf("%w: chunk map %q", ErrInvalidRecord, s)
	}

	blockSize, err1 := strconv.ParseInt(parts[0], 10, 64)
	chunkSize, err2 := strconv.ParseInt(parts[1], 10, 64)
	numChunks, err3 := strconv.Atoi(parts[2])
	flags, err4 := strconv.ParseUint(parts[3], 16, 64)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, fmt.Errorf("%w: chunk map %q: %w", ErrInvalidRecord, s, err)
	}
	if blockSize <= 0 || chunkSize < 0 || numChunks < 0 || numChunks > MaxChunks {
		return nil, fmt.Errorf("%w: chunk map %q out of range", ErrInvalidRecord, s)
	}

	cm := &ChunkMap{
		BlockSize: blockSize,
		ChunkSize: chunkSize,
		NumChunks: numChunks,
		Flags:     flags,
		Action:    syncop.Done,
	}
	if len(parts) == 5 && parts[4] != "" {
		action, err := syncop.ParseAction(parts[4])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
		cm.Action = action
	}
	return cm, nil
}
