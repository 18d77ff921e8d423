package saj

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fieldByKey(t *testing.T, fields []FieldDescriptor, key string) FieldDescriptor {
	for _, f := range fields {
		if f.Key == key {
			return f
		}
	}
	t.Errorf("descriptor %s missing", key)
	return FieldDescriptor{}
}

func TestEnergyStatsLayout(t *testing.T) {
	assert := assert.New(t)

	fields := EnergyStatsFields()
	assert.Equal(len(fields), 28, "seven counters over four periods")

	assert.Equal(fieldByKey(t, fields, "energy_pv_daily").Offset, 0x17E, "first period at the counter base")
	assert.Equal(fieldByKey(t, fields, "energy_pv_total").Offset, 0x18A, "periods laid out 4 bytes apart")
	assert.Equal(fieldByKey(t, fields, "energy_grid_imported_total").Offset, 0x1FA, "last counter")

	for _, f := range fields {
		assert.Equal(f.Type, TypeU32, f.Key+" counter width")
		assert.Equal(f.Unit, "kWh", f.Key+" unit")
	}
}

func TestBatteryInfoLayout(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(fieldByKey(t, BatteryInfoFields, "battery_1_bms_type").Offset, 0, "first pack base")
	assert.Equal(fieldByKey(t, BatteryInfoFields, "battery_2_bms_type").Offset, 40, "pack stride")
	assert.Equal(fieldByKey(t, BatteryInfoFields, "battery_2_bms_sw_version").Offset, 58, "field inside second pack")
	assert.Equal(fieldByKey(t, BatteryInfoFields, "battery_4_serial_number").Offset, 144, "last pack serial")
	assert.Equal(fieldByKey(t, BatteryInfoFields, "battery_3_serial_number").TextLen, 16, "serial length")
}

func TestBatteryControllerLayout(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(fieldByKey(t, BatteryControllerFields, "battery_3_fault").Offset, 12, "fault stride")
	assert.Equal(fieldByKey(t, BatteryControllerFields, "battery_3_warning").Offset, 14, "warning next to fault")
	assert.Equal(fieldByKey(t, BatteryControllerFields, "battery_1_soc").Offset, 24, "health base")
	assert.Equal(fieldByKey(t, BatteryControllerFields, "battery_2_soc").Offset, 36, "health stride")
	assert.Equal(fieldByKey(t, BatteryControllerFields, "battery_4_cycle").Offset, 70, "last health field")
}

func TestBlockRegistry(t *testing.T) {
	assert := assert.New(t)

	b, ok := BlockByName("realtime_data")
	assert.True(ok, "realtime block resolvable")
	assert.Equal(b.Start, RegRealtimeDataStart, "realtime start")
	assert.Equal(b.Count, RegRealtimeDataCount, "realtime count")

	_, ok = BlockByName("no_such_block")
	assert.False(ok, "unknown block")

	// every block except realtime fits into a single query
	for _, b := range Blocks() {
		if b.Name == RealtimeDataBlock.Name {
			continue
		}
		assert.True(b.Count <= MaxRegistersPerQuery, b.Name+" fits one query")
	}
}

func TestBlockFieldsInsideBuffer(t *testing.T) {
	assert := assert.New(t)

	for _, b := range Blocks() {
		size := int(b.Count) * 2
		seen := map[string]bool{}
		for _, f := range b.Fields {
			assert.False(seen[f.Key], b.Name+" duplicate key "+f.Key)
			seen[f.Key] = true

			width := 2
			switch f.Type {
			case TypeU8:
				width = 1
			case TypeU32:
				width = 4
			case TypeText:
				width = f.TextLen
			}
			assert.True(f.Offset+width <= size, b.Name+" field "+f.Key+" inside buffer")
		}
	}
}

func TestAppModeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, name := range AppModeNames() {
		mode, err := AppModeFromString(name)
		if err != nil {
			t.Error(err)
			return
		}
		assert.Equal(AppModeToString(mode), name, "mode name round trip")
	}

	mode, err := AppModeFromString("self_use")
	assert.Nil(err, "lower case accepted")
	assert.Equal(mode, AppModeSelfUse, "lower case resolves")

	_, err = AppModeFromString("TURBO")
	assert.True(errors.Is(err, ErrBadFormat), "unknown mode rejected")

	assert.Equal(AppModeToString(9), "UNKNOWN(9)", "unknown mode rendered")
	assert.Equal(WorkingModeToString(0), "UNKNOWN(0)", "unknown working mode rendered")
}

func TestWritableRegisters(t *testing.T) {
	assert := assert.New(t)

	w, ok := WritableRegisterByKey("battery_soc_low")
	assert.True(ok, "soc low resolvable")
	assert.Equal(w.Register, RegBatterySOCLow, "soc low register")
	assert.Equal(w.Min, 10.0, "soc low lower bound")
	assert.Equal(w.Max, 50.0, "soc low upper bound")

	w, ok = WritableRegisterByKey("grid_feed_power_limit")
	assert.True(ok, "feed limit resolvable")
	assert.Equal(w.Step, 100.0, "feed limit step")

	_, ok = WritableRegisterByKey("app_mode")
	assert.False(ok, "app mode is not a number entity")
}
