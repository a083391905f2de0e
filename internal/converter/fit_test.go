package converter

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitconvapp/fitconv-server/internal/errors"
)

// rec holds the field values for one synthetic record message, in raw FIT
// units (semicircles, cm, mm/s, scaled altitude).
type rec struct {
	ts     uint32
	lat    int32
	long   int32
	altRaw uint16
	hr     uint8
	cad    uint8
	dist   uint32
	speed  uint16
}

// fitBuilder assembles a syntactically valid FIT byte stream.
type fitBuilder struct {
	body []byte
}

func (b *fitBuilder) raw(p ...byte) {
	b.body = append(b.body, p...)
}

func (b *fitBuilder) u16(v uint16) {
	b.body = binary.LittleEndian.AppendUint16(b.body, v)
}

func (b *fitBuilder) u32(v uint32) {
	b.body = binary.LittleEndian.AppendUint32(b.body, v)
}

// recordDef emits a little-endian definition for local message 0 covering
// the eight record fields the decoder knows about.
func (b *fitBuilder) recordDef() {
	b.raw(0x40, 0x00, 0x00) // definition header, reserved, little-endian
	b.u16(globalMsgRecord)
	b.raw(8) // field count
	b.raw(fieldTimestamp, 4, 0x86)
	b.raw(fieldPositionLat, 4, 0x85)
	b.raw(fieldPositionLong, 4, 0x85)
	b.raw(fieldAltitude, 2, 0x84)
	b.raw(fieldHeartRate, 1, 0x02)
	b.raw(fieldCadence, 1, 0x02)
	b.raw(fieldDistance, 4, 0x86)
	b.raw(fieldSpeed, 2, 0x84)
}

// record emits one data message for local message 0.
func (b *fitBuilder) record(r rec) {
	b.raw(0x00)
	b.u32(r.ts)
	b.u32(uint32(r.lat))
	b.u32(uint32(r.long))
	b.u16(r.altRaw)
	b.raw(r.hr, r.cad)
	b.u32(r.dist)
	b.u16(r.speed)
}

// build wraps the body in a header of the given size plus the trailing CRC.
func (b *fitBuilder) build(headerSize int) []byte {
	out := make([]byte, 0, headerSize+len(b.body)+2)
	out = append(out, byte(headerSize), 0x20)
	out = binary.LittleEndian.AppendUint16(out, 0x0815) // profile version
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.body)))
	out = append(out, fitTag...)
	if headerSize == 14 {
		out = binary.LittleEndian.AppendUint16(out, crc16(out[:12]))
	}
	out = append(out, b.body...)
	return binary.LittleEndian.AppendUint16(out, crc16(out))
}

// testRec is a realistic running sample: 45 deg north, -22.5 deg west,
// 20 m altitude, 150 bpm, 80 rpm, 123.45 m in, 3 m/s.
var testRec = rec{
	ts:     1000000000,
	lat:    0x20000000,
	long:   -0x10000000,
	altRaw: 2600,
	hr:     150,
	cad:    80,
	dist:   12345,
	speed:  3000,
}

func buildFIT(recs ...rec) []byte {
	b := &fitBuilder{}
	b.recordDef()
	for _, r := range recs {
		b.record(r)
	}
	return b.build(14)
}

func TestDecode_Records(t *testing.T) {
	second := testRec
	second.ts += 1
	second.dist += 300

	samples, err := decode(buildFIT(testRec, second))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	s := samples[0]
	require.NotNil(t, s.Timestamp)
	assert.Equal(t, time.Unix(1000000000+fitEpochOffset, 0).UTC(), s.Time())
	require.NotNil(t, s.Lat)
	assert.Equal(t, int32(0x20000000), *s.Lat)
	require.NotNil(t, s.HeartRate)
	assert.Equal(t, uint8(150), *s.HeartRate)
	require.NotNil(t, s.Speed)
	assert.Equal(t, uint16(3000), *s.Speed)

	assert.Equal(t, testRec.dist+300, *samples[1].Distance)
}

func TestDecode_TwelveByteHeader(t *testing.T) {
	b := &fitBuilder{}
	b.recordDef()
	b.record(testRec)

	samples, err := decode(b.build(12))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestDecode_InvalidSentinelsBecomeNil(t *testing.T) {
	r := testRec
	r.hr = 0xFF
	r.altRaw = 0xFFFF
	r.lat = 0x7FFFFFFF

	samples, err := decode(buildFIT(r))
	require.NoError(t, err)
	require.Len(t, samples, 1)

	assert.Nil(t, samples[0].HeartRate)
	assert.Nil(t, samples[0].Altitude)
	assert.Nil(t, samples[0].Lat)
	assert.NotNil(t, samples[0].Long)
}

func TestDecode_SkipsDeveloperFields(t *testing.T) {
	b := &fitBuilder{}
	b.raw(0x60, 0x00, 0x00) // definition with developer data
	b.u16(globalMsgRecord)
	b.raw(1)
	b.raw(fieldTimestamp, 4, 0x86)
	b.raw(1)          // one developer field
	b.raw(0, 3, 0x00) // field 0, 3 bytes, developer index 0

	b.raw(0x00) // data: timestamp plus 3 developer bytes
	b.u32(testRec.ts)
	b.raw(0xAA, 0xBB, 0xCC)

	samples, err := decode(b.build(14))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, testRec.ts, *samples[0].Timestamp)
}

func TestDecode_CompressedTimestampHeader(t *testing.T) {
	b := &fitBuilder{}
	b.recordDef()
	b.record(testRec)

	// Same record body behind a compressed-timestamp header for local 0.
	b.raw(0x9F)
	b.u32(testRec.ts + 5)
	b.u32(uint32(testRec.lat))
	b.u32(uint32(testRec.long))
	b.u16(testRec.altRaw)
	b.raw(testRec.hr, testRec.cad)
	b.u32(testRec.dist)
	b.u16(testRec.speed)

	samples, err := decode(b.build(14))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, testRec.ts+5, *samples[1].Timestamp)
}

func TestDecode_NonRecordMessagesIgnored(t *testing.T) {
	b := &fitBuilder{}
	b.raw(0x41, 0x00, 0x00) // local 1, global 0 (file_id)
	b.u16(0)
	b.raw(1)
	b.raw(0, 1, 0x00)
	b.raw(0x01, 0x04) // file_id data message

	b.recordDef()
	b.record(testRec)

	samples, err := decode(b.build(14))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestDecode_BadHeader(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := decode([]byte{14, 0x20, 0x54})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConversion))
		assert.Contains(t, err.Error(), "bad header")
	})

	t.Run("bad size byte", func(t *testing.T) {
		data := buildFIT(testRec)
		data[0] = 13
		_, err := decode(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad header")
	})

	t.Run("missing tag", func(t *testing.T) {
		data := buildFIT(testRec)
		copy(data[8:12], "RIFF")
		_, err := decode(data)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConversion))
		assert.Contains(t, err.Error(), "missing .FIT tag")
	})
}

func TestDecode_Truncated(t *testing.T) {
	data := buildFIT(testRec)
	_, err := decode(data[:len(data)-5])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConversion))
	assert.Contains(t, err.Error(), "truncated")
}

func TestDecode_CRCMismatch(t *testing.T) {
	data := buildFIT(testRec)
	data[20] ^= 0xFF // flip a data byte
	_, err := decode(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConversion))
	assert.Contains(t, err.Error(), "CRC")
}

func TestDecode_DataBeforeDefinition(t *testing.T) {
	b := &fitBuilder{}
	b.raw(0x00, 0x01, 0x02, 0x03)
	_, err := decode(b.build(14))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConversion))
	assert.Contains(t, err.Error(), "data before definition")
}

func TestCRC16_KnownVector(t *testing.T) {
	// Independent check that the nibble-table CRC is stable.
	assert.Equal(t, uint16(0), crc16(nil))
	a := crc16([]byte("123456789"))
	b := crc16([]byte("123456798"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, crc16([]byte("123456789")))
}

func TestTransforms(t *testing.T) {
	assert.InDelta(t, 45.0, semicirclesToDegrees(0x20000000), 1e-9)
	assert.InDelta(t, -22.5, semicirclesToDegrees(-0x10000000), 1e-9)

	assert.Equal(t, 160, cadenceSPM(80))

	// 3 m/s is a 536.448 s mile.
	assert.Equal(t, "08:56", paceMMSS(3.0))
	// ~6:00/mile at 4.4704 m/s (exactly 10 mph).
	assert.Equal(t, "06:00", paceMMSS(4.4704))
	assert.Empty(t, paceMMSS(0))
	assert.Empty(t, paceMMSS(-1))
}
