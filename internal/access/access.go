package access

import "strings"

// Bits is a capability snapshot for one side of an entry.
type Bits uint8

const (
	DirExists Bits = 1 << iota
	DirRead
	DirWrite
	DirDelete
	FileExists
	FileRead
	FileWrite
	FileDelete

	dirMask  = DirExists | DirRead | DirWrite | DirDelete
	fileMask = FileExists | FileRead | FileWrite | FileDelete
	All      = dirMask | fileMask
)

func (b Bits) Has(flag Bits) bool {
	return b&flag == flag
}

func (b Bits) CanReadDir() bool {
	return b.Has(DirExists | DirRead)
}

func (b Bits) CanWriteDir() bool {
	return b.Has(DirWrite)
}

func (b Bits) CanDeleteDir() bool {
	return b.Has(DirExists | DirDelete)
}

func (b Bits) CanReadFile() bool {
	return b.CanReadDir() && b.Has(FileExists|FileRead)
}

// CanWriteFile allows creating an absent file or overwriting a writable one.
func (b Bits) CanWriteFile() bool {
	return b.CanWriteDir() && (!b.Has(FileExists) || b.Has(FileWrite))
}

func (b Bits) CanDeleteFile() bool {
	return b.CanDeleteDir() && b.Has(FileExists|FileDelete)
}

// ForFile returns the bits for a file inside the directory described by b.
func (b Bits) ForFile(exists bool) Bits {
	if exists {
		return b | FileExists
	}
	return b &^ FileExists
}

// Absent returns b as seen from an entry that does not exist on this side.
func (b Bits) Absent() Bits {
	return b &^ FileExists
}

// Mask clears every capability the policy does not grant.
func (b Bits) Mask(p Policy) Bits {
	return b & p.Bits()
}

func (b Bits) String() string {
	flags := []struct {
		bit  Bits
		char byte
	}{
		{DirExists, 'd'}, {DirRead, 'r'}, {DirWrite, 'w'}, {DirDelete, 'x'},
		{FileExists, 'f'}, {FileRead, 'r'}, {FileWrite, 'w'}, {FileDelete, 'x'},
	}
	var sb strings.Builder
	for _, f := range flags {
		if b.Has(f.bit) {
			sb.WriteByte(f.char)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// Policy is a configurable permission set for one side.
type Policy struct {
	Read   bool `json:"read" mapstructure:"read"`
	Write  bool `json:"write" mapstructure:"write"`
	Delete bool `json:"delete" mapstructure:"delete"`
}

// AllowAll grants read, write and delete.
var AllowAll = Policy{Read: true, Write: true, Delete: true}

// Bits returns the mask granted by the policy. Existence bits are never masked.
func (p Policy) Bits() Bits {
	b := DirExists | FileExists
	if p.Read {
		b |= DirRead | FileRead
	}
	if p.Write {
		b |= DirWrite | FileWrite
	}
	if p.Delete {
		b |= DirDelete | FileDelete
	}
	return b
}

// Model combines both sides' capabilities for one file or directory pair.
type Model struct {
	Local  Bits
	Remote Bits
}

func BothSides(local, remote Bits) Model {
	return Model{Local: local, Remote: remote}
}

// LocalOnly builds the model of an entry missing on the remote. remote are
// the bits of the remote parent directory.
func LocalOnly(local, remote Bits) Model {
	return Model{Local: local, Remote: remote.Absent()}
}

// RemoteOnly builds the model of an entry missing locally. local are the
// bits of the local parent directory.
func RemoteOnly(local, remote Bits) Model {
	return Model{Local: local.Absent(), Remote: remote}
}

func (m Model) LocalDeleteAllowed() bool {
	return m.Local.CanDeleteFile()
}

func (m Model) RemoteDeleteAllowed() bool {
	return m.Remote.CanDeleteFile()
}

// LocalWriteAllowed reports whether the remote copy may replace the local one.
func (m Model) LocalWriteAllowed() bool {
	return m.Remote.CanReadFile() && m.Local.CanWriteFile()
}

// RemoteWriteAllowed reports whether the local copy may replace the remote one.
func (m Model) RemoteWriteAllowed() bool {
	return m.Local.CanReadFile() && m.Remote.CanWriteFile()
}

func (m Model) LocalDirDeleteAllowed() bool {
	return m.Local.CanDeleteDir()
}

func (m Model) RemoteDirDeleteAllowed() bool {
	return m.Remote.CanDeleteDir()
}

func (m Model) LocalDirWriteAllowed() bool {
	return m.Remote.CanReadDir() && m.Local.CanWriteDir()
}

func (m Model) RemoteDirWriteAllowed() bool {
	return m.Local.CanReadDir() && m.Remote.CanWriteDir()
}
