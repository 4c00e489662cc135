// Package layout defines the on-disk value types of the cluster-chain
// filesystem: the boot sector, the FS-info sector, packed directory
// entries, and the FAT marker classification. None of these types perform
// I/O themselves; the fs package reads and writes them through sector.Manager.
package layout

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

const (
	// BootSectorSize is the on-disk size of BootSector, padded to one sector.
	BootSectorSize = 512
	// FSInfoSectorSize is the on-disk size of FSInfoSector, padded to one sector.
	FSInfoSectorSize = 512
	// DirEntrySize is the packed on-disk size of a DirEntry.
	DirEntrySize = 32
	// dirEntryNameLen is the length of the short-name field within a DirEntry.
	dirEntryNameLen = 23
)

// BootSector is the first sector of the volume: geometry and layout
// parameters needed to locate every other structure on disk.
type BootSector struct {
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorsCount uint16
	TotalSectors32       uint32
	FatCount             uint8
	SectorsPerFat32      uint32
	RootCluster          uint32
	RootDirSectorsCount  uint32
	FSInfoSector         uint16
}

// DefaultBootSector returns a BootSector with the conventional FAT32-style
// defaults, leaving volume-size-dependent fields zeroed for the caller to fill.
func DefaultBootSector() BootSector {
	return BootSector{
		BytesPerSector:       512,
		SectorsPerCluster:    1,
		ReservedSectorsCount: 32,
		FatCount:             2,
		RootCluster:          2,
		FSInfoSector:         1,
	}
}

// MarshalBinary packs the boot sector into its 512-byte on-disk form.
func (b BootSector) MarshalBinary() []byte {
	buf := make([]byte, BootSectorSize)
	binary.LittleEndian.PutUint16(buf[0:2], b.BytesPerSector)
	buf[2] = b.SectorsPerCluster
	binary.LittleEndian.PutUint16(buf[3:5], b.ReservedSectorsCount)
	binary.LittleEndian.PutUint32(buf[5:9], b.TotalSectors32)
	buf[9] = b.FatCount
	binary.LittleEndian.PutUint32(buf[10:14], b.SectorsPerFat32)
	binary.LittleEndian.PutUint32(buf[14:18], b.RootCluster)
	binary.LittleEndian.PutUint32(buf[18:22], b.RootDirSectorsCount)
	binary.LittleEndian.PutUint16(buf[22:24], b.FSInfoSector)
	return buf
}

// UnmarshalBootSector unpacks a 512-byte buffer into a BootSector.
func UnmarshalBootSector(buf []byte) BootSector {
	var b BootSector
	b.BytesPerSector = binary.LittleEndian.Uint16(buf[0:2])
	b.SectorsPerCluster = buf[2]
	b.ReservedSectorsCount = binary.LittleEndian.Uint16(buf[3:5])
	b.TotalSectors32 = binary.LittleEndian.Uint32(buf[5:9])
	b.FatCount = buf[9]
	b.SectorsPerFat32 = binary.LittleEndian.Uint32(buf[10:14])
	b.RootCluster = binary.LittleEndian.Uint32(buf[14:18])
	b.RootDirSectorsCount = binary.LittleEndian.Uint32(buf[18:22])
	b.FSInfoSector = binary.LittleEndian.Uint16(buf[22:24])
	return b
}

// FatStartSector returns the first sector of the FAT area.
func (b BootSector) FatStartSector() uint32 {
	return uint32(b.ReservedSectorsCount)
}

// BytesPerSectorU32 returns BytesPerSector widened to uint32 for arithmetic
// with the other geometry fields.
func (b BootSector) BytesPerSectorU32() uint32 {
	return uint32(b.BytesPerSector)
}

// FatSectorsCount returns the number of sectors occupied by a single FAT copy.
func (b BootSector) FatSectorsCount() uint32 {
	return b.SectorsPerFat32
}

// RootDirStartSector returns the first sector of the root directory area,
// immediately after both FAT copies.
func (b BootSector) RootDirStartSector() uint32 {
	return b.FatStartSector() + b.FatSectorsCount()*2
}

// DataStartSector returns the first sector of the data (cluster) area.
func (b BootSector) DataStartSector() uint32 {
	return b.RootDirStartSector()
}

// DataSectorsCount returns the number of sectors in the data area.
func (b BootSector) DataSectorsCount() uint32 {
	return b.TotalSectors32 - b.DataStartSector()
}

// ClustersCount returns the number of clusters in the data area.
func (b BootSector) ClustersCount() uint32 {
	return b.DataSectorsCount() / uint32(b.SectorsPerCluster)
}

// SectorToCluster converts a sector id to the cluster id it belongs to.
// Cluster numbering starts at 2, matching the FAT convention that clusters
// 0 and 1 are reserved.
func (b BootSector) SectorToCluster(sectorID uint32) uint32 {
	return (sectorID-b.DataStartSector())/uint32(b.SectorsPerCluster) + 2
}

// ClusterToSector converts a cluster id to its first sector.
func (b BootSector) ClusterToSector(clusterID uint32) uint32 {
	return b.DataStartSector() + (clusterID-2)*uint32(b.SectorsPerCluster)
}

// BytesPerCluster returns the size in bytes of one cluster.
func (b BootSector) BytesPerCluster() uint32 {
	return b.BytesPerSectorU32() * uint32(b.SectorsPerCluster)
}

// FSInfoSector mirrors the FAT32 FSInfo structure: a cached free-cluster
// count and allocation hint, both advisory and reconstructible by a full
// FAT scan.
type FSInfoSector struct {
	FreeClusterCount uint32
	NextFreeCluster  uint32
}

// NewFSInfoSector builds an FSInfoSector with the given counters.
func NewFSInfoSector(freeClusterCount, nextFreeCluster uint32) FSInfoSector {
	return FSInfoSector{FreeClusterCount: freeClusterCount, NextFreeCluster: nextFreeCluster}
}

// MarshalBinary packs the FS-info sector into its 512-byte on-disk form.
func (f FSInfoSector) MarshalBinary() []byte {
	buf := make([]byte, FSInfoSectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.FreeClusterCount)
	binary.LittleEndian.PutUint32(buf[4:8], f.NextFreeCluster)
	return buf
}

// UnmarshalFSInfoSector unpacks a 512-byte buffer into an FSInfoSector.
func UnmarshalFSInfoSector(buf []byte) FSInfoSector {
	return FSInfoSector{
		FreeClusterCount: binary.LittleEndian.Uint32(buf[0:4]),
		NextFreeCluster:  binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// DirEntryAttr classifies a directory entry. Unlike a conventional FAT
// bitflag byte, the on-disk encoding here holds at most one flag at a time;
// any byte that doesn't match a known single flag decodes as Archive.
type DirEntryAttr uint8

const (
	AttrReadOnly  DirEntryAttr = 0x01
	AttrHidden    DirEntryAttr = 0x02
	AttrSystem    DirEntryAttr = 0x04
	AttrVolumeID  DirEntryAttr = 0x08
	AttrDirectory DirEntryAttr = 0x10
	AttrArchive   DirEntryAttr = 0x20
)

// Contains reports whether other is set within m. The on-disk encoding
// here never combines flags, but keeping the bitflag test means a future
// decoder that does pack multiple flags into one byte only has to change
// attrFromByte, not every caller that classifies an entry.
func (m DirEntryAttr) Contains(other DirEntryAttr) bool {
	return m&other == other
}

// attrFromByte decodes a single on-disk attribute byte, defaulting to
// AttrArchive for any value that isn't one of the six recognized flags.
func attrFromByte(b byte) DirEntryAttr {
	switch DirEntryAttr(b) {
	case AttrReadOnly, AttrHidden, AttrSystem, AttrVolumeID, AttrDirectory, AttrArchive:
		return DirEntryAttr(b)
	default:
		return AttrArchive
	}
}

// DirEntry is a single 32-byte packed directory entry: a short name, an
// attribute byte, the file's first cluster, and its size.
type DirEntry struct {
	Name         [dirEntryNameLen]byte
	Attr         DirEntryAttr
	FirstCluster uint32
	FileSize     uint32
}

// NewDirEntry decodes a 32-byte buffer into a DirEntry.
func NewDirEntry(buf []byte) DirEntry {
	var e DirEntry
	copy(e.Name[:], buf[0:23])
	e.Attr = attrFromByte(buf[23])
	e.FirstCluster = binary.LittleEndian.Uint32(buf[24:28])
	e.FileSize = binary.LittleEndian.Uint32(buf[28:32])
	return e
}

// AsBytes packs the entry back into its 32-byte on-disk form.
func (e DirEntry) AsBytes() []byte {
	buf := make([]byte, DirEntrySize)
	copy(buf[0:23], e.Name[:])
	buf[23] = byte(e.Attr)
	binary.LittleEndian.PutUint32(buf[24:28], e.FirstCluster)
	binary.LittleEndian.PutUint32(buf[28:32], e.FileSize)
	return buf
}

// IncreaseFileSize adds size to the entry's recorded file size.
func (e *DirEntry) IncreaseFileSize(size uint32) {
	e.FileSize += size
}

// DecreaseFileSize subtracts size from the entry's recorded file size.
func (e *DirEntry) DecreaseFileSize(size uint32) {
	e.FileSize -= size
}

// IsValid reports whether the entry's first name byte marks it as a live
// entry, as opposed to deleted (0xE5) or never-used (0x00).
func (e DirEntry) IsValid() bool {
	return e.Name[0] != 0xE5 && e.Name[0] != 0x00
}

// IsEndMarker reports whether the entry marks the end of a directory's used
// region: a slot that has never been written, as opposed to a reusable
// tombstone.
func (e DirEntry) IsEndMarker() bool {
	return e.Name[0] == 0x00
}

// IsDir reports whether the entry names a directory.
func (e DirEntry) IsDir() bool {
	return e.Attr.Contains(AttrDirectory)
}

// IsFile reports whether the entry names a file.
func (e DirEntry) IsFile() bool {
	return !e.IsDir()
}

// DecodedName returns the entry's decoded name, or false if the raw bytes
// aren't valid UTF-8, or (for directories) contain characters outside
// [A-Za-z0-9_-].
func (e DirEntry) DecodedName() (string, bool) {
	trimmed := strings.TrimRight(string(e.Name[:]), "\x00")
	if !utf8.ValidString(trimmed) {
		return "", false
	}
	if e.IsDir() && !isSimpleDirName(trimmed) {
		return "", false
	}
	return trimmed, true
}

func isSimpleDirName(s string) bool {
	for _, c := range s {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

// EncodeName packs s into a fixed 23-byte name field. It fails if s is
// longer than the field.
func EncodeName(s string) ([dirEntryNameLen]byte, bool) {
	var out [dirEntryNameLen]byte
	if len(s) > dirEntryNameLen {
		return out, false
	}
	copy(out[:], s)
	return out, true
}

// FatKind classifies the meaning of a raw FAT table entry.
type FatKind int

const (
	// FatFree marks a cluster as unallocated.
	FatFree FatKind = iota
	// FatReserved marks a cluster as reserved (not allocatable).
	FatReserved
	// FatInUse marks a cluster as allocated, carrying the next cluster in
	// its chain.
	FatInUse
	// FatBadCluster marks a cluster as unusable.
	FatBadCluster
	// FatEndOfChain marks a cluster as the last in its chain.
	FatEndOfChain
)

const (
	fatValueFree         uint32 = 0x00000000
	fatValueReserved     uint32 = 0x00000001
	fatValueBadCluster   uint32 = 0x0FFFFFF7
	fatValueEndOfChainLo uint32 = 0x0FFFFFF8
	fatValueEndOfChainHi uint32 = 0x0FFFFFFF
)

// FatMarker is the decoded meaning of one FAT table entry. For FatInUse,
// Next holds the next cluster in the chain.
type FatMarker struct {
	Kind FatKind
	Next uint32
}

// FatMarkerFromValue decodes a raw 32-bit FAT entry.
func FatMarkerFromValue(value uint32) FatMarker {
	switch {
	case value == fatValueFree:
		return FatMarker{Kind: FatFree}
	case value == fatValueReserved:
		return FatMarker{Kind: FatReserved}
	case value == fatValueBadCluster:
		return FatMarker{Kind: FatBadCluster}
	case value >= fatValueEndOfChainLo && value <= fatValueEndOfChainHi:
		return FatMarker{Kind: FatEndOfChain}
	default:
		return FatMarker{Kind: FatInUse, Next: value}
	}
}

// Value encodes the marker back into its raw 32-bit FAT representation.
// FatEndOfChain always encodes as 0x0FFFFFFF, whichever value in the
// end-of-chain range it was decoded from.
func (m FatMarker) Value() uint32 {
	switch m.Kind {
	case FatFree:
		return fatValueFree
	case FatReserved:
		return fatValueReserved
	case FatBadCluster:
		return fatValueBadCluster
	case FatEndOfChain:
		return fatValueEndOfChainHi
	default:
		return m.Next
	}
}
