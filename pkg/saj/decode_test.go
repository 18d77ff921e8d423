package saj

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScaleDigits(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ByFactor(0.1).Digits, 1, "tenths")
	assert.Equal(ByFactor(0.01).Digits, 2, "hundredths")
	assert.Equal(ByFactor(0.001).Digits, 3, "thousandths")
	assert.Equal(ByFactor(1.0).Digits, 1, "integral factor keeps one decimal")
	assert.Equal(ByFactor(-1.0).Digits, 1, "negative integral factor")

	lit := ByLiteral("0.001")
	assert.Equal(lit.Digits, 3, "literal digits")
	assert.True(lit.Fixed, "literal renders fixed precision")
	assert.False(ByFactor(0.001).Fixed, "factor renders as number")
}

func TestDecodeScaledField(t *testing.T) {
	assert := assert.New(t)

	buf := []byte{0x04, 0xD2}
	v, err := DecodeField(buf, FieldDescriptor{Key: "grid_voltage", Offset: 0, Type: TypeU16, Scale: ByFactor(0.1)})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Float, 123.4, "raw 1234 at tenths")
	assert.Equal(v.Render(), "123.4", "rendered value")

	buf = []byte{0xFF, 0x9C}
	v, err = DecodeField(buf, FieldDescriptor{Key: "grid_current", Offset: 0, Type: TypeI16, Scale: ByFactor(0.01)})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Float, -1.0, "signed raw -100 at hundredths")
	assert.Equal(v.Render(), "-1.00", "rendered signed value")

	buf = []byte{0x00, 0x01, 0x86, 0xA0}
	v, err = DecodeField(buf, FieldDescriptor{Key: "energy_pv_total", Offset: 0, Type: TypeU32, Scale: ByFactor(0.01)})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Float, 1000.0, "u32 raw 100000 at hundredths")
}

func TestDecodeUnscaledField(t *testing.T) {
	assert := assert.New(t)

	v, err := DecodeField([]byte{0x00, 0x2A}, FieldDescriptor{Key: "battery_capacity", Offset: 0, Type: TypeU16})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Float, 42.0, "raw value untouched")
	assert.Equal(v.Render(), "42", "rendered without decimals")
}

func TestDecodeFixedPrecision(t *testing.T) {
	assert := assert.New(t)

	buf := []byte{0x04, 0xCE}
	v, err := DecodeField(buf, FieldDescriptor{Key: "inverter_display_sw_version", Offset: 0, Type: TypeU16, Scale: ByLiteral("0.001")})
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(v.IsText, "fixed precision renders as text")
	assert.Equal(v.Text, "1.230", "trailing zero preserved")

	buf = []byte{0x00, 0x04}
	v, err = DecodeField(buf, FieldDescriptor{Key: "inverter_slave_control_sw_version", Offset: 0, Type: TypeU16, Scale: ByLiteral("0.001")})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Text, "0.004", "small version")
}

func TestDecodeMappedField(t *testing.T) {
	assert := assert.New(t)

	v, err := DecodeField([]byte{0x00, 0x02}, FieldDescriptor{Key: "inverter_working_mode", Offset: 0, Type: TypeU16, Map: workingModeName})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Text, "NORMAL", "working mode name")

	// 500 W into the battery shows as charging
	v, err = DecodeField([]byte{0xFE, 0x0C}, FieldDescriptor{Key: "realtime_battery_state", Offset: 0, Type: TypeI16, Scale: ByFactor(1.0), Map: BatteryStateName})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Text, BatteryStateCharging, "battery state from signed power")

	// raw 250 with the inverting scale means power leaves towards the grid
	v, err = DecodeField([]byte{0x00, 0xFA}, FieldDescriptor{Key: "realtime_grid_state", Offset: 0, Type: TypeI16, Scale: ByFactor(-1.0), Map: GridStateName})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Text, GridStateExporting, "grid state from inverted power")
}

func TestDecodeText(t *testing.T) {
	assert := assert.New(t)

	buf := []byte{'A', 'B', 'C', 0x00, 0x00}
	v, err := DecodeField(buf, FieldDescriptor{Key: "inverter_serial_number", Offset: 0, Type: TypeText, TextLen: 5})
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(v.IsText, "text field")
	assert.Equal(v.Text, "ABC", "NUL padding stripped")

	buf = []byte{'H', 0x01, '1', 0xFF, 'R'}
	v, err = DecodeField(buf, FieldDescriptor{Key: "inverter_product_code", Offset: 0, Type: TypeText, TextLen: 5})
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Text, "H1R", "non printable bytes ignored")
}

func TestDecodeAbsentBuffer(t *testing.T) {
	assert := assert.New(t)

	v, err := DecodeField(nil, FieldDescriptor{Key: "grid_voltage", Offset: 0, Type: TypeU16})
	assert.Nil(v, "no value without a buffer")
	assert.Nil(err, "absent buffer is not a fault")

	ts, err := DecodeTimestamp(nil, 0)
	assert.Nil(ts, "no timestamp without a buffer")
	assert.Nil(err, "absent buffer is not a fault")
}

func TestDecodeOutOfRange(t *testing.T) {
	assert := assert.New(t)

	v, err := DecodeField([]byte{0x00, 0x01}, FieldDescriptor{Key: "battery_soc", Offset: 0xDE, Type: TypeU16})
	assert.Nil(v, "no value outside the buffer")
	assert.True(errors.Is(err, ErrShortBuffer), "short buffer reported")

	v, err = DecodeField([]byte{0x00, 0x01}, FieldDescriptor{Key: "inverter_serial_number", Offset: 0, Type: TypeText, TextLen: 20})
	assert.Nil(v, "no text outside the buffer")
	assert.True(errors.Is(err, ErrShortBuffer), "short buffer reported for text")
}

func TestDecodeTimestamp(t *testing.T) {
	assert := assert.New(t)

	buf := []byte{0x07, 0xE8, 0x06, 0x0F, 0x0C, 0x1E, 0x2D, 0x00}
	ts, err := DecodeTimestamp(buf, 0)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(*ts, time.Date(2024, time.June, 15, 12, 30, 45, 0, time.UTC), "decoded instant")

	// month out of range
	buf = []byte{0x07, 0xE8, 0x0D, 0x0F, 0x0C, 0x1E, 0x2D, 0x00}
	ts, err = DecodeTimestamp(buf, 0)
	assert.Nil(ts, "no instant for month 13")
	assert.True(errors.Is(err, ErrBadCalendar), "bad month reported")

	// February 30th does not normalize away
	buf = []byte{0x07, 0xE8, 0x02, 0x1E, 0x0C, 0x1E, 0x2D, 0x00}
	ts, err = DecodeTimestamp(buf, 0)
	assert.Nil(ts, "no instant for February 30th")
	assert.True(errors.Is(err, ErrBadCalendar), "bad day reported")

	// a zeroed clock has no valid year
	ts, err = DecodeTimestamp(make([]byte, 8), 0)
	assert.Nil(ts, "no instant for a zeroed clock")
	assert.True(errors.Is(err, ErrBadCalendar), "zero year reported")
}

func TestParseWireType(t *testing.T) {
	assert := assert.New(t)

	dt, n, err := ParseWireType(">H")
	assert.Nil(err)
	assert.Equal(dt, TypeU16, "unsigned word")
	assert.Equal(n, 0, "no text length")

	dt, _, err = ParseWireType(">h")
	assert.Nil(err)
	assert.Equal(dt, TypeI16, "signed word")

	dt, _, err = ParseWireType(">I")
	assert.Nil(err)
	assert.Equal(dt, TypeU32, "unsigned double word")

	dt, n, err = ParseWireType(">S20")
	assert.Nil(err)
	assert.Equal(dt, TypeText, "text")
	assert.Equal(n, 20, "text length")

	_, _, err = ParseWireType("f")
	assert.True(errors.Is(err, ErrBadFormat), "unknown format rejected")

	_, _, err = ParseWireType(">S0")
	assert.True(errors.Is(err, ErrBadFormat), "zero length text rejected")
}

func TestRealtimeFieldVector(t *testing.T) {
	assert := assert.New(t)

	// place a battery SOC of 95.00 % at its block offset
	buf := make([]byte, 2*RegRealtimeDataCount)
	binary.BigEndian.PutUint16(buf[0xDE:], 9500)

	var soc *FieldDescriptor
	for i := range RealtimeDataFields {
		if RealtimeDataFields[i].Key == "battery_soc" {
			soc = &RealtimeDataFields[i]
		}
	}
	if soc == nil {
		t.Error("battery_soc descriptor missing")
		return
	}

	v, err := DecodeField(buf, *soc)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(v.Float, 95.0, "battery SOC")
	assert.Equal(v.Render(), "95.00", "battery SOC rendered")
}
