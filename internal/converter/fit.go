package converter

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/fitconvapp/fitconv-server/internal/errors"
)

// FIT timestamps count seconds from 1989-12-31T00:00:00Z.
const fitEpochOffset = 631065600

// Global message number for "record" (the per-second sample stream).
const globalMsgRecord = 20

// Field definition numbers within a record message.
const (
	fieldTimestamp    = 253
	fieldPositionLat  = 0
	fieldPositionLong = 1
	fieldAltitude     = 2
	fieldHeartRate    = 3
	fieldCadence      = 4
	fieldDistance     = 5
	fieldSpeed        = 6
)

var fitTag = []byte(".FIT")

// sample is one decoded record message. Pointers distinguish absent or
// invalid-sentinel fields from real zero values.
type sample struct {
	Timestamp *uint32 // FIT epoch seconds
	Lat       *int32  // semicircles
	Long      *int32  // semicircles
	Altitude  *uint16 // (m * 5) + 2500
	HeartRate *uint8  // bpm
	Cadence   *uint8  // rpm (per-leg for running)
	Distance  *uint32 // cm
	Speed     *uint16 // mm/s
}

// Time converts the FIT timestamp to UTC wall time.
func (s *sample) Time() time.Time {
	return time.Unix(int64(*s.Timestamp)+fitEpochOffset, 0).UTC()
}

// fieldDef is one field within a definition message.
type fieldDef struct {
	num      byte
	size     byte
	baseType byte
}

// msgDef is an active local message definition.
type msgDef struct {
	littleEndian bool
	globalNum    uint16
	fields       []fieldDef
	devSize      int // total developer-field bytes to skip per data message
}

// decode parses a complete FIT byte stream and returns its record samples.
// All structural defects return errors.CodeConversion.
func decode(data []byte) ([]sample, error) {
	if len(data) < 12 {
		return nil, errors.Conversion("bad header: file too short")
	}

	headerSize := int(data[0])
	if headerSize != 12 && headerSize != 14 {
		return nil, errors.Conversionf("bad header: unexpected header size %d", headerSize)
	}
	if len(data) < headerSize {
		return nil, errors.Conversion("bad header: file too short")
	}
	if !bytes.Equal(data[8:12], fitTag) {
		return nil, errors.Conversion("bad header: missing .FIT tag")
	}

	dataSize := int(binary.LittleEndian.Uint32(data[4:8]))

	// 14-byte headers carry their own CRC; zero means "not computed".
	if headerSize == 14 {
		headerCRC := binary.LittleEndian.Uint16(data[12:14])
		if headerCRC != 0 && headerCRC != crc16(data[:12]) {
			return nil, errors.Conversion("file failed CRC check (corrupted data)")
		}
	}

	if len(data) < headerSize+dataSize+2 {
		return nil, errors.Conversion("file appears truncated")
	}

	fileCRC := binary.LittleEndian.Uint16(data[headerSize+dataSize : headerSize+dataSize+2])
	if fileCRC != crc16(data[:headerSize+dataSize]) {
		return nil, errors.Conversion("file failed CRC check (corrupted data)")
	}

	r := &reader{buf: data, pos: headerSize, end: headerSize + dataSize}
	defs := make(map[byte]*msgDef)
	var samples []sample

	for r.pos < r.end {
		hdr, err := r.byte()
		if err != nil {
			return nil, err
		}

		var local byte
		switch {
		case hdr&0x80 != 0:
			// Compressed timestamp header; the 5-bit time offset is
			// ignored since record messages carry a full timestamp field.
			local = (hdr >> 5) & 0x03
		case hdr&0x40 != 0:
			local = hdr & 0x0F
			def, err := readDefinition(r, hdr&0x20 != 0)
			if err != nil {
				return nil, err
			}
			defs[local] = def
			continue
		default:
			local = hdr & 0x0F
		}

		def, ok := defs[local]
		if !ok {
			return nil, errors.Conversion("could not decode FIT stream: data before definition")
		}
		s, err := readData(r, def)
		if err != nil {
			return nil, err
		}
		if def.globalNum == globalMsgRecord && s.Timestamp != nil {
			samples = append(samples, *s)
		}
	}

	return samples, nil
}

// readDefinition parses a definition message body.
func readDefinition(r *reader, hasDev bool) (*msgDef, error) {
	fixed, err := r.bytes(5)
	if err != nil {
		return nil, err
	}

	def := &msgDef{littleEndian: fixed[1] == 0}
	if def.littleEndian {
		def.globalNum = binary.LittleEndian.Uint16(fixed[2:4])
	} else {
		def.globalNum = binary.BigEndian.Uint16(fixed[2:4])
	}

	numFields := int(fixed[4])
	for range numFields {
		f, err := r.bytes(3)
		if err != nil {
			return nil, err
		}
		def.fields = append(def.fields, fieldDef{num: f[0], size: f[1], baseType: f[2]})
	}

	if hasDev {
		n, err := r.byte()
		if err != nil {
			return nil, err
		}
		for range int(n) {
			f, err := r.bytes(3)
			if err != nil {
				return nil, err
			}
			def.devSize += int(f[1])
		}
	}

	return def, nil
}

// readData parses one data message according to its definition.
func readData(r *reader, def *msgDef) (*sample, error) {
	var s sample

	order := binary.ByteOrder(binary.LittleEndian)
	if !def.littleEndian {
		order = binary.BigEndian
	}

	for _, f := range def.fields {
		raw, err := r.bytes(int(f.size))
		if err != nil {
			return nil, err
		}
		if def.globalNum != globalMsgRecord {
			continue
		}

		switch f.num {
		case fieldTimestamp:
			if v, ok := readUint32(raw, order); ok {
				s.Timestamp = &v
			}
		case fieldPositionLat:
			if v, ok := readInt32(raw, order); ok {
				s.Lat = &v
			}
		case fieldPositionLong:
			if v, ok := readInt32(raw, order); ok {
				s.Long = &v
			}
		case fieldAltitude:
			if v, ok := readUint16(raw, order); ok {
				s.Altitude = &v
			}
		case fieldHeartRate:
			if v, ok := readUint8(raw); ok {
				s.HeartRate = &v
			}
		case fieldCadence:
			if v, ok := readUint8(raw); ok {
				s.Cadence = &v
			}
		case fieldDistance:
			if v, ok := readUint32(raw, order); ok {
				s.Distance = &v
			}
		case fieldSpeed:
			if v, ok := readUint16(raw, order); ok {
				s.Speed = &v
			}
		}
	}

	if def.devSize > 0 {
		if _, err := r.bytes(def.devSize); err != nil {
			return nil, err
		}
	}

	return &s, nil
}

// Field readers return ok=false for wrong sizes and invalid-value sentinels.

func readUint8(raw []byte) (uint8, bool) {
	if len(raw) != 1 || raw[0] == 0xFF {
		return 0, false
	}
	return raw[0], true
}

func readUint16(raw []byte, order binary.ByteOrder) (uint16, bool) {
	if len(raw) != 2 {
		return 0, false
	}
	v := order.Uint16(raw)
	if v == 0xFFFF {
		return 0, false
	}
	return v, true
}

func readUint32(raw []byte, order binary.ByteOrder) (uint32, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	v := order.Uint32(raw)
	if v == 0xFFFFFFFF {
		return 0, false
	}
	return v, true
}

func readInt32(raw []byte, order binary.ByteOrder) (int32, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	v := int32(order.Uint32(raw))
	if v == 0x7FFFFFFF {
		return 0, false
	}
	return v, true
}

// reader is a bounds-checked cursor over the data section.
type reader struct {
	buf []byte
	pos int
	end int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= r.end {
		return 0, errors.Conversion("file appears truncated")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > r.end {
		return nil, errors.Conversion("file appears truncated")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// crcTable implements the FIT CRC-16 nibble lookup.
var crcTable = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400, 0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401, 0x5000, 0x9C01, 0x8801, 0x4400,
}

// crc16 computes the FIT file checksum.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		tmp := crcTable[crc&0x0F]
		crc = (crc >> 4) & 0x0FFF
		crc = crc ^ tmp ^ crcTable[b&0x0F]

		tmp = crcTable[crc&0x0F]
		crc = (crc >> 4) & 0x0FFF
		crc = crc ^ tmp ^ crcTable[(b>>4)&0x0F]
	}
	return crc
}
