// Package sectorio provides offset-addressed, fixed-size sector read/write
// over a seekable stream. It is the only layer that touches raw image I/O;
// every higher layer reads and writes whole sectors through it.
package sectorio

import (
	"fmt"
	"io"

	"github.com/mdfat/fat12/errkind"
)

// Device is a sector-addressed view over an io.ReadWriteSeeker. Sector 0 is
// the start of the stream; there is no startOffset skip because super-floppy
// images carry no partition table (spec §6).
type Device struct {
	stream     io.ReadWriteSeeker
	sectorSize uint32
}

// New wraps stream as a Device with the given sector size, taken from a
// parsed Geometry's BytesPerSector.
func New(stream io.ReadWriteSeeker, sectorSize uint32) *Device {
	return &Device{stream: stream, sectorSize: sectorSize}
}

// SectorSize returns the device's fixed sector size in bytes.
func (d *Device) SectorSize() uint32 {
	return d.sectorSize
}

func (d *Device) seek(lba uint32) error {
	offset := int64(lba) * int64(d.sectorSize)
	_, err := d.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return errkind.IO.Wrap(fmt.Errorf("seeking to sector %d: %w", lba, err))
	}
	return nil
}

// ReadSector reads exactly one sector at lba into buf, which must be at
// least SectorSize bytes. It returns errkind.IO on seek failure or short
// read.
func (d *Device) ReadSector(lba uint32, buf []byte) error {
	if uint32(len(buf)) < d.sectorSize {
		return errkind.IO.WithMessage(fmt.Sprintf(
			"buffer too small: need %d bytes, got %d", d.sectorSize, len(buf)))
	}
	if err := d.seek(lba); err != nil {
		return err
	}
	n, err := io.ReadFull(d.stream, buf[:d.sectorSize])
	if err != nil || uint32(n) != d.sectorSize {
		return errkind.IO.Wrap(fmt.Errorf("reading sector %d: %w", lba, err))
	}
	return nil
}

// WriteSector writes exactly one sector at lba from buf, which must be at
// least SectorSize bytes. It returns errkind.IO on seek failure or short
// write.
func (d *Device) WriteSector(lba uint32, buf []byte) error {
	if uint32(len(buf)) < d.sectorSize {
		return errkind.IO.WithMessage(fmt.Sprintf(
			"buffer too small: need %d bytes, got %d", d.sectorSize, len(buf)))
	}
	if err := d.seek(lba); err != nil {
		return err
	}
	n, err := d.stream.Write(buf[:d.sectorSize])
	if err != nil || uint32(n) != d.sectorSize {
		return errkind.IO.Wrap(fmt.Errorf("writing sector %d: %w", lba, err))
	}
	return nil
}

// ReadSectors reads count consecutive sectors starting at lba into buf,
// which must be at least count*SectorSize bytes. There is no multi-sector
// buffering layer; this loops over ReadSector (spec §4.2).
func (d *Device) ReadSectors(lba uint32, count uint32, buf []byte) error {
	need := count * d.sectorSize
	if uint32(len(buf)) < need {
		return errkind.IO.WithMessage(fmt.Sprintf(
			"buffer too small: need %d bytes, got %d", need, len(buf)))
	}
	for i := uint32(0); i < count; i++ {
		start := i * d.sectorSize
		if err := d.ReadSector(lba+i, buf[start:start+d.sectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteSectors writes count consecutive sectors starting at lba from buf,
// looping over WriteSector.
func (d *Device) WriteSectors(lba uint32, count uint32, buf []byte) error {
	need := count * d.sectorSize
	if uint32(len(buf)) < need {
		return errkind.IO.WithMessage(fmt.Sprintf(
			"buffer too small: need %d bytes, got %d", need, len(buf)))
	}
	for i := uint32(0); i < count; i++ {
		start := i * d.sectorSize
		if err := d.WriteSector(lba+i, buf[start:start+d.sectorSize]); err != nil {
			return err
		}
	}
	return nil
}
