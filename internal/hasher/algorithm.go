package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const DefaultAlgorithm = "md5"

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"crc32":  func() hash.Hash { return crc32.NewIEEE() },
	"xxh64":  func() hash.Hash { return xxhash.New() },
}

// NormalizeAlgorithm lower cases name and applies the default.
func NormalizeAlgorithm(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultAlgorithm, nil
	}
	if _, ok := algorithms[name]; !ok {
		return "", fmt.Errorf("%w %q. Must be one of %s", ErrUnknownAlgorithm, name, strings.Join(Algorithms(), ", "))
	}
	return name, nil
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewHash(name string) (hash.Hash, error) {
	name, err := NormalizeAlgorithm(name)
	if err != nil {
		return nil, err
	}
	return algorithms[name](), nil
}

// Digest streams r through the named algorithm in reads of bufSize bytes and
// returns the hex encoded sum.
func Digest(r io.Reader, algorithm string, bufSize int) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	// hide WriterTo so reads go through buf
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{r}, make([]byte, bufSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile hashes the file at path.
func DigestFile(path, algorithm string, bufSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Digest(f, algorithm, bufSize)
}
