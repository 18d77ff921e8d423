package events

import (
	"encoding/binary"
	"testing"

	. "sajh1mqtt/internal/core/domain"
	"sajh1mqtt/pkg/saj"

	"github.com/stretchr/testify/assert"
)

// int16Bits returns the two's-complement wire representation of v; the
// conversion must go through a non-constant to compile for negative values.
func int16Bits(v int16) uint16 {
	return uint16(v)
}

func realtimeTestBuffer() []byte {
	buf := make([]byte, 2*int(saj.RegRealtimeDataCount))

	// inverter clock 2024-05-01 12:30:45
	binary.BigEndian.PutUint16(buf[0x0:], 2024)
	buf[0x2], buf[0x3] = 5, 1
	buf[0x4], buf[0x5], buf[0x6] = 12, 30, 45

	binary.BigEndian.PutUint16(buf[0x8:], saj.WorkingModeNormal)
	binary.BigEndian.PutUint16(buf[0xDE:], 9500)                  // battery soc 95.00 %
	binary.BigEndian.PutUint16(buf[0x140:], 1030)                 // system load
	binary.BigEndian.PutUint16(buf[0x142:], int16Bits(-150)) // smart meter 1
	binary.BigEndian.PutUint16(buf[0x14A:], 1500)                 // pv power
	binary.BigEndian.PutUint16(buf[0x14C:], int16Bits(-320)) // battery power
	binary.BigEndian.PutUint16(buf[0x15A:], int16Bits(-250)) // smart meter 2, sign inverted on the wire

	return buf
}

func eventsById(events []any) map[string]any {
	byId := make(map[string]any, len(events))
	for _, event := range events {
		byId[event.(SensorUpdateEvent).SensorId()] = event
	}
	return byId
}

func TestRealtimeBlockUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	events := BlockUpdateEvents("saj_h1", saj.RealtimeDataBlock, realtimeTestBuffer(), false)
	byId := eventsById(events)

	soc, ok := byId["saj_h1_battery_soc"].(FloatSensorUpdateEvent)
	assert.True(ok, "battery soc event")
	assert.Equal(95.0, soc.Value, "battery soc value")
	assert.Equal(uint(2), soc.Decimals, "battery soc decimals")

	mode, ok := byId["saj_h1_inverter_working_mode"].(TextSensorUpdateEvent)
	assert.True(ok, "working mode event")
	assert.Equal("NORMAL", mode.Value, "working mode name")

	pv, ok := byId["saj_h1_realtime_pv_power"].(FloatSensorUpdateEvent)
	assert.True(ok, "pv power event")
	assert.Equal(1500.0, pv.Value, "pv power value")

	grid, ok := byId["saj_h1_realtime_grid_power"].(FloatSensorUpdateEvent)
	assert.True(ok, "grid power event")
	assert.Equal(250.0, grid.Value, "smart meter sign flipped")

	gridState, ok := byId["saj_h1_realtime_grid_state"].(TextSensorUpdateEvent)
	assert.True(ok, "grid state event")
	assert.Equal(saj.GridStateImporting, gridState.Value, "grid state")

	batteryState, ok := byId["saj_h1_realtime_battery_state"].(TextSensorUpdateEvent)
	assert.True(ok, "battery state event")
	assert.Equal(saj.BatteryStateCharging, batteryState.Value, "battery state")

	load, ok := byId["saj_h1_realtime_system_load_power"].(FloatSensorUpdateEvent)
	assert.True(ok, "load power event")
	assert.Equal(1030.0, load.Value, "load power value")

	clock, ok := byId["saj_h1_inverter_time"].(TextSensorUpdateEvent)
	assert.True(ok, "clock event")
	assert.Equal("2024-05-01T12:30:45Z", clock.Value, "inverter clock")
}

func TestRealtimeAccuratePowerEvents(t *testing.T) {

	assert := assert.New(t)

	events := BlockUpdateEvents("saj_h1", saj.RealtimeDataBlock, realtimeTestBuffer(), true)
	byId := eventsById(events)

	grid, ok := byId["saj_h1_realtime_grid_power"].(FloatSensorUpdateEvent)
	assert.True(ok, "grid power event")
	assert.Equal(-150.0, grid.Value, "grid power from smart meter 1")

	gridState, ok := byId["saj_h1_realtime_grid_state"].(TextSensorUpdateEvent)
	assert.True(ok, "grid state event")
	assert.Equal(saj.GridStateExporting, gridState.Value, "grid state")

	load, ok := byId["saj_h1_realtime_system_load_power"].(FloatSensorUpdateEvent)
	assert.True(ok, "load power event")
	assert.Equal(1130.0, load.Value, "load sums backup and both meters")

	loadState, ok := byId["saj_h1_realtime_system_load_state"].(TextSensorUpdateEvent)
	assert.True(ok, "load state event")
	assert.Equal(saj.LoadStateConsuming, loadState.Value, "load state")
}

func TestConfigBlockControlEvents(t *testing.T) {

	assert := assert.New(t)

	buf := make([]byte, 2*int(saj.RegConfigCount))
	binary.BigEndian.PutUint16(buf[0:], saj.AppModeTimeOfUse)
	binary.BigEndian.PutUint16(buf[2:], 3300) // grid charge power limit
	binary.BigEndian.PutUint16(buf[84:], 20)  // battery soc backup

	events := BlockUpdateEvents("saj_h1", saj.ConfigDataBlock, buf, false)
	assert.Equal(len(saj.ConfigDataFields), len(events), "one event per config field")

	for _, event := range events {
		switch event.(type) {
		case SelectSensorUpdateEvent, InputNumberSensorUpdateEvent:
		default:
			assert.Fail("config block maps to control events only", "got %T", event)
		}
	}

	byId := eventsById(events)

	appMode, ok := byId["saj_h1_app_mode"].(SelectSensorUpdateEvent)
	assert.True(ok, "app mode select event")
	assert.Equal("TIME_OF_USE", appMode.Value, "app mode name")

	limit, ok := byId["saj_h1_grid_charge_power_limit"].(InputNumberSensorUpdateEvent)
	assert.True(ok, "charge limit number event")
	assert.Equal(3300.0, limit.Value, "charge limit value")

	backup, ok := byId["saj_h1_battery_soc_backup"].(InputNumberSensorUpdateEvent)
	assert.True(ok, "soc backup number event")
	assert.Equal(20.0, backup.Value, "soc backup value")
}

func TestBlockUpdateEventsNilBuffer(t *testing.T) {

	assert := assert.New(t)

	assert.Empty(BlockUpdateEvents("saj_h1", saj.RealtimeDataBlock, nil, false), "no events before the first poll")
	assert.Empty(BlockUpdateEvents("saj_h1", saj.ConfigDataBlock, nil, false), "no control events before the first poll")
}
