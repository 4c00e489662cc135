package fs

import (
	"encoding/binary"

	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/kestrelfs/ccfs/cursor"
	"github.com/kestrelfs/ccfs/layout"
	"github.com/kestrelfs/ccfs/sector"
)

// Geometry describes the parameters needed to lay out a fresh volume.
// SectorsPerCluster and FatCount fall back to the conventional FAT32
// defaults (1 and 2) when zero.
type Geometry struct {
	SectorsPerCluster uint8
	FatCount          uint8
	RootDirSectors    uint32
}

// Format writes a fresh boot sector, FS-info sector, FAT with every data
// cluster free, and empty root directory onto dev, then mounts it. dev's block size must be 512.
func Format(dev block.Device, geometry Geometry) (*Filesystem, error) {
	if dev.BlockSize() != 512 {
		return nil, ccfserr.ErrInvalidArgument.WithMessage("block size %d, want 512", dev.BlockSize())
	}

	b := layout.DefaultBootSector()
	if geometry.SectorsPerCluster != 0 {
		b.SectorsPerCluster = geometry.SectorsPerCluster
	}
	if geometry.FatCount != 0 {
		b.FatCount = geometry.FatCount
	}
	b.RootDirSectorsCount = geometry.RootDirSectors
	if b.RootDirSectorsCount == 0 {
		b.RootDirSectorsCount = 1
	}
	b.TotalSectors32 = uint32(dev.NumBlocks())

	dataSectors := b.TotalSectors32 - uint32(b.ReservedSectorsCount)
	// Take the root directory area out of the remaining sectors before
	// sizing the FAT. The FAT copies themselves are not subtracted, so the
	// estimate can exceed the real cluster count; the surplus FAT entries
	// are marked reserved below.
	usableForFatAndData := dataSectors - b.RootDirSectorsCount
	clusterCountEstimate := usableForFatAndData / uint32(b.SectorsPerCluster)
	fatEntriesPerSector := uint32(b.BytesPerSector) / 4
	b.SectorsPerFat32 = (clusterCountEstimate + fatEntriesPerSector - 1) / fatEntriesPerSector
	if b.SectorsPerFat32 == 0 {
		b.SectorsPerFat32 = 1
	}

	mgr := sector.NewManager(cursor.New(dev))

	mgr.SetPosition(0)
	if err := mgr.WriteSectorSeq(b.MarshalBinary()); err != nil {
		return nil, err
	}

	// The root directory occupies the first cluster(s) of the data area, so
	// the allocator's hint starts just past it.
	rootClusters := (b.RootDirSectorsCount + uint32(b.SectorsPerCluster) - 1) / uint32(b.SectorsPerCluster)
	clustersCount := b.ClustersCount()

	mgr.SetPosition(uint64(b.BytesPerSector))
	info := layout.NewFSInfoSector(clustersCount-rootClusters, 2+rootClusters)
	if err := mgr.WriteSectorSeq(info.MarshalBinary()); err != nil {
		return nil, err
	}

	// The FAT is sized in whole sectors, so it usually has more entries than
	// the volume has clusters. Entries 0 and 1 and everything past the last
	// real cluster are marked reserved so the allocator never hands them out.
	fatEntries := b.FatSectorsCount() * (uint32(b.BytesPerSector) / 4)
	fat := make([]byte, fatEntries*4)
	reserved := layout.FatMarker{Kind: layout.FatReserved}.Value()
	binary.LittleEndian.PutUint32(fat[0:4], reserved)
	binary.LittleEndian.PutUint32(fat[4:8], reserved)
	for entry := 2 + clustersCount; entry < fatEntries; entry++ {
		binary.LittleEndian.PutUint32(fat[entry*4:entry*4+4], reserved)
	}

	fatStartSector := uint64(b.FatStartSector())
	sectorSize := uint64(b.BytesPerSector)
	for copyIdx := uint32(0); copyIdx < uint32(b.FatCount); copyIdx++ {
		base := fatStartSector + uint64(copyIdx)*uint64(b.FatSectorsCount())
		for s := uint64(0); s < uint64(b.FatSectorsCount()); s++ {
			mgr.SetPosition((base + s) * sectorSize)
			if err := mgr.WriteSectorSeq(fat[s*sectorSize : (s+1)*sectorSize]); err != nil {
				return nil, err
			}
		}
	}

	zeroSector := make([]byte, sectorSize)
	rootDirStart := uint64(b.RootDirStartSector())
	for s := uint64(0); s < uint64(b.RootDirSectorsCount); s++ {
		mgr.SetPosition((rootDirStart + s) * sectorSize)
		if err := mgr.WriteSectorSeq(zeroSector); err != nil {
			return nil, err
		}
	}

	return Init(dev)
}
