package saj

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataType is the wire type of a register field.
type DataType int

const (
	TypeU16 DataType = iota
	TypeI16
	TypeU32
	TypeU8
	TypeText
)

// Decoder errors. All of them are diagnostics: a field that fails to decode
// is reported as absent, never as a failed poll.
var (
	ErrShortBuffer = errors.New("field outside buffer")
	ErrBadCalendar = errors.New("not a valid calendar date")
	ErrBadFormat   = errors.New("unknown wire format")
)

// Scale converts a raw register value to its engineering unit. Digits is the
// display precision, taken from the decimal digits of the factor literal.
// Fixed scales render as fixed-precision strings so trailing zeros survive
// (firmware version fields).
type Scale struct {
	Factor float64
	Digits int
	Fixed  bool
}

// ByFactor derives the precision from the factor's shortest decimal form.
// Integral factors still carry one decimal place.
func ByFactor(f float64) *Scale {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return &Scale{Factor: f, Digits: 1}
	}
	return &Scale{Factor: f, Digits: len(s) - i - 1}
}

// ByLiteral parses a string factor, keeping its exact decimal count for
// fixed-precision rendering.
func ByLiteral(lit string) *Scale {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		panic(fmt.Sprintf("saj: scale literal %q: %v", lit, err))
	}
	digits := 0
	if i := strings.IndexByte(lit, '.'); i >= 0 {
		digits = len(lit) - i - 1
	}
	return &Scale{Factor: f, Digits: digits, Fixed: true}
}

// FieldDescriptor locates one value inside a block buffer and describes how
// to decode and publish it. Descriptors are static and safe to share.
type FieldDescriptor struct {
	Key         string
	Offset      int
	Type        DataType
	TextLen     int
	Scale       *Scale
	Map         func(scaled float64) string
	Unit        string
	DeviceClass string
	StateClass  string
	Enabled     bool
}

// Value is one decoded field. Text is set for text fields, fixed-precision
// scales and mapped enums; Float and Decimals otherwise.
type Value struct {
	Float    float64
	Decimals int
	Text     string
	IsText   bool
}

// Render formats the value for publication.
func (v *Value) Render() string {
	if v.IsText {
		return v.Text
	}
	return strconv.FormatFloat(v.Float, 'f', v.Decimals, 64)
}

// DecodeField reads one field out of a block buffer. A nil buffer (no
// successful poll yet) yields a nil value and no error. A decode fault
// yields a nil value and the diagnostic explaining it.
func DecodeField(buf []byte, d FieldDescriptor) (*Value, error) {
	if buf == nil {
		return nil, nil
	}
	if d.Type == TypeText {
		if d.Offset < 0 || d.Offset+d.TextLen > len(buf) {
			return nil, fmt.Errorf("saj: decode %s at %d+%d in %d byte buffer: %w",
				d.Key, d.Offset, d.TextLen, len(buf), ErrShortBuffer)
		}
		return &Value{Text: decodeText(buf[d.Offset : d.Offset+d.TextLen]), IsText: true}, nil
	}
	raw, err := readNumeric(buf, d.Offset, d.Type)
	if err != nil {
		return nil, fmt.Errorf("saj: decode %s: %w", d.Key, err)
	}
	value, digits := raw, 0
	if d.Scale != nil {
		value = roundTo(raw*d.Scale.Factor, d.Scale.Digits)
		digits = d.Scale.Digits
	}
	if d.Map != nil {
		return &Value{Text: d.Map(value), IsText: true}, nil
	}
	if d.Scale != nil && d.Scale.Fixed {
		return &Value{Text: strconv.FormatFloat(value, 'f', digits, 64), IsText: true}, nil
	}
	return &Value{Float: value, Decimals: digits}, nil
}

// DecodeTimestamp reads the inverter clock span: a big-endian year followed
// by month, day, hour, minute and second bytes. The trailing reserved byte
// is not part of the instant. Values that do not form a real calendar date
// yield a nil time.
func DecodeTimestamp(buf []byte, off int) (*time.Time, error) {
	if buf == nil {
		return nil, nil
	}
	if off < 0 || off+8 > len(buf) {
		return nil, fmt.Errorf("saj: decode timestamp at %d in %d byte buffer: %w", off, len(buf), ErrShortBuffer)
	}
	year := int(binary.BigEndian.Uint16(buf[off:]))
	month, day := int(buf[off+2]), int(buf[off+3])
	hour, minute, sec := int(buf[off+4]), int(buf[off+5]), int(buf[off+6])
	if year < 1 || month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return nil, badCalendar(year, month, day, hour, minute, sec)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return nil, badCalendar(year, month, day, hour, minute, sec)
	}
	return &t, nil
}

func badCalendar(year, month, day, hour, minute, sec int) error {
	return fmt.Errorf("saj: timestamp %04d-%02d-%02d %02d:%02d:%02d: %w",
		year, month, day, hour, minute, sec, ErrBadCalendar)
}

// ParseWireType maps a format string to a wire type: ">H", ">h", ">I", ">B"
// or ">Sn" for n bytes of text. The second result is the text length.
func ParseWireType(format string) (DataType, int, error) {
	switch format {
	case ">H":
		return TypeU16, 0, nil
	case ">h":
		return TypeI16, 0, nil
	case ">I":
		return TypeU32, 0, nil
	case ">B":
		return TypeU8, 0, nil
	}
	if strings.HasPrefix(format, ">S") {
		n, err := strconv.Atoi(format[2:])
		if err == nil && n > 0 {
			return TypeText, n, nil
		}
	}
	return 0, 0, fmt.Errorf("saj: format %q: %w", format, ErrBadFormat)
}

// WireSize is the byte span a wire type occupies in a block buffer.
func WireSize(t DataType, textLen int) int {
	switch t {
	case TypeU8:
		return 1
	case TypeU32:
		return 4
	case TypeText:
		return textLen
	}
	return 2
}

func readNumeric(buf []byte, off int, t DataType) (float64, error) {
	width := 2
	switch t {
	case TypeU8:
		width = 1
	case TypeU32:
		width = 4
	}
	if off < 0 || off+width > len(buf) {
		return 0, fmt.Errorf("offset %d width %d in %d byte buffer: %w", off, width, len(buf), ErrShortBuffer)
	}
	switch t {
	case TypeU8:
		return float64(buf[off]), nil
	case TypeU16:
		return float64(binary.BigEndian.Uint16(buf[off:])), nil
	case TypeI16:
		return float64(int16(binary.BigEndian.Uint16(buf[off:]))), nil
	case TypeU32:
		return float64(binary.BigEndian.Uint32(buf[off:])), nil
	}
	return 0, fmt.Errorf("wire type %d: %w", t, ErrBadFormat)
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// decodeText keeps printable ASCII and drops NUL padding and any other
// non-printable bytes.
func decodeText(span []byte) string {
	var sb strings.Builder
	for _, c := range span {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
