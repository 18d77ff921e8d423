package saj

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// Modbus function codes tunneled through the data_transmission topics.
const (
	FunctionReadRegisters byte = 0x03
	FunctionWriteRegister byte = 0x06
)

const (
	// DeviceAddress is the fixed Modbus unit id of the inverter. The topic
	// pair is already scoped by serial number, so one address is enough.
	DeviceAddress byte = 0x01

	// MaxRegistersPerQuery caps a single read request. The protocol ceiling
	// is 123 registers (a response cannot exceed 256 bytes); the vendor
	// tooling never goes above 0x64.
	MaxRegistersPerQuery uint16 = 0x64
)

// Frame codec errors.
var (
	ErrCountOutOfRange    = errors.New("register count out of range")
	ErrTruncated          = errors.New("truncated frame")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrUnexpectedFunction = errors.New("unexpected function code")
	ErrUnexpectedLength   = errors.New("unexpected payload length")
)

// ReadChunk is one device-sized slice of a larger register read.
type ReadChunk struct {
	Start uint16
	Count uint16
}

// SplitRead slices a read into chunks of at most MaxRegistersPerQuery.
// A zero count yields no chunks; EncodeRead rejects it anyway.
func SplitRead(start, count uint16) []ReadChunk {
	var chunks []ReadChunk
	for count > 0 {
		n := count
		if n > MaxRegistersPerQuery {
			n = MaxRegistersPerQuery
		}
		chunks = append(chunks, ReadChunk{Start: start, Count: n})
		start += n
		count -= n
	}
	return chunks
}

// Checksum seals request frames and verifies response frames. The trailer
// goes on the wire low byte first.
type Checksum interface {
	Compute(data []byte) uint16
}

type crc16Modbus struct {
	table *crc16.Table
}

func (c crc16Modbus) Compute(data []byte) uint16 {
	return crc16.Checksum(data, c.table)
}

// NewCRC16Modbus returns the checksum the H1 family uses: CRC16/Modbus,
// poly 0xA001 reflected, init 0xFFFF.
func NewCRC16Modbus() Checksum {
	return crc16Modbus{table: crc16.MakeTable(crc16.CRC16_MODBUS)}
}

// ResponseFrame is a parsed data_transmission_rsp frame. Payload is set for
// read responses, Register and Value for write responses.
type ResponseFrame struct {
	Device   byte
	Function byte
	Payload  []byte
	Register uint16
	Value    uint16
}

// Codec builds request frames and parses response frames for one device
// address with a fixed checksum strategy.
type Codec struct {
	addr byte
	sum  Checksum
}

func NewCodec(sum Checksum) *Codec {
	return &Codec{addr: DeviceAddress, sum: sum}
}

// DefaultCodec is the production codec: device address 0x01, CRC16/Modbus.
func DefaultCodec() *Codec {
	return NewCodec(NewCRC16Modbus())
}

// EncodeRead builds a request for count registers starting at start.
// count must be between 1 and MaxRegistersPerQuery.
func (c *Codec) EncodeRead(start, count uint16) ([]byte, error) {
	if count < 1 || count > MaxRegistersPerQuery {
		return nil, fmt.Errorf("saj: encode read of %d registers: %w", count, ErrCountOutOfRange)
	}
	return c.seal([]byte{c.addr, FunctionReadRegisters, byte(start >> 8), byte(start), byte(count >> 8), byte(count)}), nil
}

// EncodeWrite builds a single-register write request.
func (c *Codec) EncodeWrite(register, value uint16) []byte {
	return c.seal([]byte{c.addr, FunctionWriteRegister, byte(register >> 8), byte(register), byte(value >> 8), byte(value)})
}

// DecodeResponse validates and parses a response frame. Read responses must
// declare exactly the payload length they carry.
func (c *Codec) DecodeResponse(raw []byte) (*ResponseFrame, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("saj: decode %d byte frame: %w", len(raw), ErrTruncated)
	}
	switch fn := raw[1]; fn {
	case FunctionReadRegisters:
		if len(raw) < 5 {
			return nil, fmt.Errorf("saj: decode read response %s: %w", HexBytes(raw), ErrTruncated)
		}
		declared := int(raw[2])
		if len(raw) != 3+declared+2 {
			return nil, fmt.Errorf("saj: read response declares %d payload bytes, carries %d: %w",
				declared, len(raw)-5, ErrTruncated)
		}
		if err := c.verify(raw); err != nil {
			return nil, err
		}
		return &ResponseFrame{Device: raw[0], Function: fn, Payload: raw[3 : 3+declared]}, nil
	case FunctionWriteRegister:
		if len(raw) != 8 {
			return nil, fmt.Errorf("saj: decode write response %s: %w", HexBytes(raw), ErrTruncated)
		}
		if err := c.verify(raw); err != nil {
			return nil, err
		}
		return &ResponseFrame{
			Device:   raw[0],
			Function: fn,
			Register: uint16(raw[2])<<8 | uint16(raw[3]),
			Value:    uint16(raw[4])<<8 | uint16(raw[5]),
		}, nil
	default:
		return nil, fmt.Errorf("saj: decode function 0x%02x: %w", fn, ErrUnexpectedFunction)
	}
}

// EncodeReadResponse builds the device side of a read exchange. Used by
// tests and device simulators.
func (c *Codec) EncodeReadResponse(payload []byte) []byte {
	frame := append([]byte{c.addr, FunctionReadRegisters, byte(len(payload))}, payload...)
	return c.seal(frame)
}

// EncodeWriteResponse builds the device side of a write exchange.
func (c *Codec) EncodeWriteResponse(register, value uint16) []byte {
	return c.seal([]byte{c.addr, FunctionWriteRegister, byte(register >> 8), byte(register), byte(value >> 8), byte(value)})
}

func (c *Codec) seal(frame []byte) []byte {
	crc := c.sum.Compute(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func (c *Codec) verify(raw []byte) error {
	got := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	if want := c.sum.Compute(raw[:len(raw)-2]); got != want {
		return fmt.Errorf("saj: frame %s: trailer 0x%04x, computed 0x%04x: %w", HexBytes(raw), got, want, ErrChecksumMismatch)
	}
	return nil
}

// HexBytes renders bytes the way the vendor tools log them.
func HexBytes(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}
