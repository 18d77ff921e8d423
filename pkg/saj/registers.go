package saj

import (
	"fmt"
	"strconv"
	"strings"
)

// Register blocks polled from the inverter.
const (
	RegRealtimeDataStart uint16 = 0x4000
	RegRealtimeDataCount uint16 = 0x100
	RegInverterInfoStart uint16 = 0x8F00
	RegInverterInfoCount uint16 = 0x1E
	RegBatteryInfoStart  uint16 = 0x8E00
	RegBatteryInfoCount  uint16 = 0x50
	RegBatteryCtrlStart  uint16 = 0xA000
	RegBatteryCtrlCount  uint16 = 0x24
	RegConfigStart       uint16 = 0x3247
	RegConfigCount       uint16 = 0x2E
)

// Writable configuration registers.
const (
	RegAppMode              uint16 = 0x3247
	RegGridChargePowerLimit uint16 = 0x3248
	RegGridFeedPowerLimit   uint16 = 0x3249
	RegBatterySOCBackup     uint16 = 0x3271
	RegBatterySOCHigh       uint16 = 0x3273
	RegBatterySOCLow        uint16 = 0x3274
)

// inverter working modes
const (
	WorkingModeWait   uint16 = 1
	WorkingModeNormal uint16 = 2
	WorkingModeFault  uint16 = 3
	WorkingModeUpdate uint16 = 4
)

// application modes
const (
	AppModeSelfUse   uint16 = 0
	AppModeTimeOfUse uint16 = 1
	AppModeBackup    uint16 = 2
	AppModePassive   uint16 = 3
)

const UnknownStr = "UNKNOWN"

func WorkingModeToString(mode uint16) string {
	switch mode {
	case WorkingModeWait:
		return "WAIT"
	case WorkingModeNormal:
		return "NORMAL"
	case WorkingModeFault:
		return "FAULT"
	case WorkingModeUpdate:
		return "UPDATE"
	default:
		return fmt.Sprintf("%s(%d)", UnknownStr, mode)
	}
}

func AppModeToString(mode uint16) string {
	switch mode {
	case AppModeSelfUse:
		return "SELF_USE"
	case AppModeTimeOfUse:
		return "TIME_OF_USE"
	case AppModeBackup:
		return "BACKUP"
	case AppModePassive:
		return "PASSIVE"
	default:
		return fmt.Sprintf("%s(%d)", UnknownStr, mode)
	}
}

// AppModeFromString resolves an operator-facing mode name, case-insensitive.
func AppModeFromString(s string) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SELF_USE":
		return AppModeSelfUse, nil
	case "TIME_OF_USE":
		return AppModeTimeOfUse, nil
	case "BACKUP":
		return AppModeBackup, nil
	case "PASSIVE":
		return AppModePassive, nil
	default:
		return 0, fmt.Errorf("saj: app mode %q: %w", s, ErrBadFormat)
	}
}

// AppModeNames lists the selectable application modes in register order.
func AppModeNames() []string {
	return []string{"SELF_USE", "TIME_OF_USE", "BACKUP", "PASSIVE"}
}

// Power flow states derived from the signed summary powers.
const (
	SolarStateProducing     = "PRODUCING"
	SolarStateStandby       = "STANDBY"
	BatteryStateCharging    = "CHARGING"
	BatteryStateDischarging = "DISCHARGING"
	BatteryStateStandby     = "STANDBY"
	GridStateImporting      = "IMPORTING"
	GridStateExporting      = "EXPORTING"
	GridStateStandby        = "STANDBY"
	LoadStateConsuming      = "CONSUMING"
	LoadStateStandby        = "STANDBY"
)

func workingModeName(v float64) string {
	return WorkingModeToString(uint16(v))
}

func appModeName(v float64) string {
	return AppModeToString(uint16(v))
}

// SolarStateName maps a PV summary power to its state.
func SolarStateName(watts float64) string {
	if watts > 0 {
		return SolarStateProducing
	}
	return SolarStateStandby
}

// BatteryStateName maps a signed battery power to its state. Positive means
// the battery is feeding the system.
func BatteryStateName(watts float64) string {
	switch {
	case watts > 0:
		return BatteryStateDischarging
	case watts < 0:
		return BatteryStateCharging
	default:
		return BatteryStateStandby
	}
}

// GridStateName maps a signed grid power to its state. Positive means power
// is drawn from the grid.
func GridStateName(watts float64) string {
	switch {
	case watts > 0:
		return GridStateImporting
	case watts < 0:
		return GridStateExporting
	default:
		return GridStateStandby
	}
}

// LoadStateName maps a system load power to its state.
func LoadStateName(watts float64) string {
	if watts > 0 {
		return LoadStateConsuming
	}
	return LoadStateStandby
}

// RealtimeDataFields are the instantaneous telemetry fields of block 0x4000.
// Offsets are byte offsets into the block buffer.
var RealtimeDataFields = []FieldDescriptor{
	// inverter clock, also decoded as one timestamp at offset 0
	{Key: "time_year", Offset: 0x0, Type: TypeU16},
	{Key: "time_month", Offset: 0x2, Type: TypeU8},
	{Key: "time_day", Offset: 0x3, Type: TypeU8},
	{Key: "time_hour", Offset: 0x4, Type: TypeU8},
	{Key: "time_minute", Offset: 0x5, Type: TypeU8},
	{Key: "time_second", Offset: 0x6, Type: TypeU8},
	{Key: "time_reserved", Offset: 0x7, Type: TypeU8},

	{Key: "inverter_working_mode", Offset: 0x8, Type: TypeU16, Map: workingModeName, Enabled: true},
	{Key: "heatsink_temperature", Offset: 0x20, Type: TypeI16, Scale: ByFactor(0.1), Unit: "°C", DeviceClass: "temperature", StateClass: "measurement", Enabled: true},
	{Key: "earth_leakage_current", Offset: 0x24, Type: TypeU16, Scale: ByFactor(1.0), Unit: "mA", DeviceClass: "current", StateClass: "measurement", Enabled: true},

	// grid side
	{Key: "grid_voltage", Offset: 0x62, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "grid_current", Offset: 0x64, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "grid_frequency", Offset: 0x66, Type: TypeU16, Scale: ByFactor(0.01), Unit: "Hz", DeviceClass: "frequency", StateClass: "measurement"},
	{Key: "grid_dc_component", Offset: 0x68, Type: TypeI16, Scale: ByFactor(0.001), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "grid_power_active", Offset: 0x6A, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "grid_power_apparent", Offset: 0x6C, Type: TypeI16, Scale: ByFactor(1.0), Unit: "VA", DeviceClass: "apparent_power", StateClass: "measurement"},
	{Key: "grid_power_factor", Offset: 0x6E, Type: TypeI16, Scale: ByFactor(0.1), Unit: "%", DeviceClass: "power_factor", StateClass: "measurement"},

	// inverter side
	{Key: "inverter_voltage", Offset: 0x8C, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "inverter_current", Offset: 0x8E, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "inverter_frequency", Offset: 0x90, Type: TypeU16, Scale: ByFactor(0.01), Unit: "Hz", DeviceClass: "frequency", StateClass: "measurement"},
	{Key: "inverter_power_active", Offset: 0x92, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "inverter_power_apparent", Offset: 0x94, Type: TypeI16, Scale: ByFactor(1.0), Unit: "VA", DeviceClass: "apparent_power", StateClass: "measurement"},
	{Key: "inverter_bus_master_voltage", Offset: 0xCE, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "inverter_bus_slave_voltage", Offset: 0xD0, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},

	// backup output side
	{Key: "output_voltage", Offset: 0xAA, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "output_current", Offset: 0xAC, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "output_frequency", Offset: 0xAE, Type: TypeU16, Scale: ByFactor(0.01), Unit: "Hz", DeviceClass: "frequency", StateClass: "measurement"},
	{Key: "output_dc_voltage", Offset: 0xB0, Type: TypeI16, Scale: ByFactor(0.001), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "output_power_active", Offset: 0xB2, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "output_power_apparent", Offset: 0xB4, Type: TypeI16, Scale: ByFactor(1.0), Unit: "VA", DeviceClass: "apparent_power", StateClass: "measurement"},

	// battery side
	{Key: "battery_voltage", Offset: 0xD2, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "battery_current", Offset: 0xD4, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "battery_control_current_1", Offset: 0xD6, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "battery_control_current_2", Offset: 0xD8, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "battery_power", Offset: 0xDA, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "battery_temperature", Offset: 0xDC, Type: TypeI16, Scale: ByFactor(0.1), Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"},
	{Key: "battery_soc", Offset: 0xDE, Type: TypeU16, Scale: ByFactor(0.01), Unit: "%", DeviceClass: "battery", StateClass: "measurement", Enabled: true},

	// photovoltaics
	{Key: "pv_array_1_voltage", Offset: 0xE2, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "pv_array_1_current", Offset: 0xE4, Type: TypeU16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "pv_array_1_power", Offset: 0xE6, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "pv_array_2_voltage", Offset: 0xE8, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
	{Key: "pv_array_2_current", Offset: 0xEA, Type: TypeU16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
	{Key: "pv_array_2_power", Offset: 0xEC, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},

	// power summaries
	{Key: "summary_system_load_power", Offset: 0x140, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_smart_meter_load_power_1", Offset: 0x142, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_pv_power", Offset: 0x14A, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_battery_power", Offset: 0x14C, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_grid_power", Offset: 0x14E, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_inverter_power", Offset: 0x152, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_backup_load_power", Offset: 0x156, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
	{Key: "summary_smart_meter_load_power_2", Offset: 0x15A, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement"},
}

// Energy counters of block 0x4000. Each expands into daily, monthly, yearly
// and total periods laid out 4 bytes apart.
var realtimeEnergyStats = []FieldDescriptor{
	{Key: "energy_pv", Offset: 0x17E, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_battery_charged", Offset: 0x18E, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_battery_discharged", Offset: 0x19E, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_system_load", Offset: 0x1BE, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_backup_load", Offset: 0x1CE, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_grid_exported", Offset: 0x1DE, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
	{Key: "energy_grid_imported", Offset: 0x1EE, Type: TypeU32, Scale: ByFactor(0.01), Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Enabled: true},
}

var energyPeriods = []string{"daily", "monthly", "yearly", "total"}

// EnergyStatsFields expands every energy counter into its four periods.
func EnergyStatsFields() []FieldDescriptor {
	fields := make([]FieldDescriptor, 0, len(realtimeEnergyStats)*len(energyPeriods))
	for _, base := range realtimeEnergyStats {
		for i, period := range energyPeriods {
			d := base
			d.Key = base.Key + "_" + period
			d.Offset = base.Offset + 4*i
			fields = append(fields, d)
		}
	}
	return fields
}

// Power flow fields over the realtime summaries. The raw smart meter
// reading at 0x15A comes in with the opposite sign, hence the negative
// factor. The accurate grid variants read smart meter 1 instead, which
// already carries the right sign.
var (
	FlowPVPowerField       = FieldDescriptor{Key: "realtime_pv_power", Offset: 0x14A, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement", Enabled: true}
	FlowBatteryPowerField  = FieldDescriptor{Key: "realtime_battery_power", Offset: 0x14C, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement", Enabled: true}
	FlowGridPowerField     = FieldDescriptor{Key: "realtime_grid_power", Offset: 0x15A, Type: TypeI16, Scale: ByFactor(-1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement", Enabled: true}
	FlowLoadPowerField     = FieldDescriptor{Key: "realtime_system_load_power", Offset: 0x140, Type: TypeU16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement", Enabled: true}
	FlowPVStateField       = FieldDescriptor{Key: "realtime_pv_state", Offset: 0x14A, Type: TypeU16, Scale: ByFactor(1.0), Map: SolarStateName, Enabled: true}
	FlowBatteryStateField  = FieldDescriptor{Key: "realtime_battery_state", Offset: 0x14C, Type: TypeI16, Scale: ByFactor(1.0), Map: BatteryStateName, Enabled: true}
	FlowGridStateField     = FieldDescriptor{Key: "realtime_grid_state", Offset: 0x15A, Type: TypeI16, Scale: ByFactor(-1.0), Map: GridStateName, Enabled: true}
	FlowLoadStateField     = FieldDescriptor{Key: "realtime_system_load_state", Offset: 0x140, Type: TypeU16, Scale: ByFactor(1.0), Map: LoadStateName, Enabled: true}
	AccurateGridPowerField = FieldDescriptor{Key: "realtime_grid_power", Offset: 0x142, Type: TypeI16, Scale: ByFactor(1.0), Unit: "W", DeviceClass: "power", StateClass: "measurement", Enabled: true}
	AccurateGridStateField = FieldDescriptor{Key: "realtime_grid_state", Offset: 0x142, Type: TypeI16, Scale: ByFactor(1.0), Map: GridStateName, Enabled: true}
)

// RealtimeDerivedFields lists the power flow fields in publish order. The
// accurate variants swap in at decode time under the same keys, so this one
// list also describes the entity set.
func RealtimeDerivedFields() []FieldDescriptor {
	return []FieldDescriptor{
		FlowPVPowerField, FlowBatteryPowerField, FlowGridPowerField, FlowLoadPowerField,
		FlowPVStateField, FlowBatteryStateField, FlowGridStateField, FlowLoadStateField,
	}
}

// InverterInfoFields identify the device (block 0x8F00).
var InverterInfoFields = []FieldDescriptor{
	{Key: "inverter_type", Offset: 0, Type: TypeU16},
	{Key: "inverter_sub_type", Offset: 2, Type: TypeU16},
	{Key: "inverter_comm_pro_version", Offset: 4, Type: TypeU16, Scale: ByFactor(0.001)},
	{Key: "inverter_serial_number", Offset: 6, Type: TypeText, TextLen: 20, Enabled: true},
	{Key: "inverter_product_code", Offset: 26, Type: TypeText, TextLen: 20},
	{Key: "inverter_display_sw_version", Offset: 46, Type: TypeU16, Scale: ByLiteral("0.001"), Enabled: true},
	{Key: "inverter_master_control_sw_version", Offset: 48, Type: TypeU16, Scale: ByLiteral("0.001"), Enabled: true},
	{Key: "inverter_slave_control_sw_version", Offset: 50, Type: TypeU16, Scale: ByLiteral("0.001")},
	{Key: "inverter_display_board_hw_version", Offset: 52, Type: TypeU16, Scale: ByLiteral("0.001")},
	{Key: "inverter_control_board_hw_version", Offset: 54, Type: TypeU16, Scale: ByLiteral("0.001")},
	{Key: "inverter_power_board_hw_version", Offset: 56, Type: TypeU16, Scale: ByLiteral("0.001")},
	{Key: "inverter_battery_numbers", Offset: 58, Type: TypeU16},
}

// BatteryInfoFields identify up to four battery packs (block 0x8E00), laid
// out at 40 byte strides.
var BatteryInfoFields = batteryInfoFields()

func batteryInfoFields() []FieldDescriptor {
	var fields []FieldDescriptor
	for n := 0; n < 4; n++ {
		base := n * 40
		id := strconv.Itoa(n + 1)
		fields = append(fields,
			FieldDescriptor{Key: "battery_" + id + "_bms_type", Offset: base, Type: TypeU16},
			FieldDescriptor{Key: "battery_" + id + "_bms_serial_number", Offset: base + 2, Type: TypeText, TextLen: 16},
			FieldDescriptor{Key: "battery_" + id + "_bms_sw_version", Offset: base + 18, Type: TypeU16, Scale: ByLiteral("0.001")},
			FieldDescriptor{Key: "battery_" + id + "_bms_hw_version", Offset: base + 20, Type: TypeU16, Scale: ByLiteral("0.001")},
			FieldDescriptor{Key: "battery_" + id + "_type", Offset: base + 22, Type: TypeU16},
			FieldDescriptor{Key: "battery_" + id + "_serial_number", Offset: base + 24, Type: TypeText, TextLen: 16},
		)
	}
	return fields
}

// BatteryControllerFields report the pack health registers (block 0xA000).
var BatteryControllerFields = batteryControllerFields()

func batteryControllerFields() []FieldDescriptor {
	fields := []FieldDescriptor{
		{Key: "battery_numbers", Offset: 0, Type: TypeU16, Enabled: true},
		{Key: "battery_capacity", Offset: 2, Type: TypeU16, Unit: "AH"},
	}
	for n := 0; n < 4; n++ {
		id := strconv.Itoa(n + 1)
		fields = append(fields,
			FieldDescriptor{Key: "battery_" + id + "_fault", Offset: 4 + n*4, Type: TypeU16},
			FieldDescriptor{Key: "battery_" + id + "_warning", Offset: 6 + n*4, Type: TypeU16},
		)
	}
	for n := 0; n < 4; n++ {
		base := 24 + n*12
		id := strconv.Itoa(n + 1)
		fields = append(fields,
			FieldDescriptor{Key: "battery_" + id + "_soc", Offset: base, Type: TypeU16, Scale: ByFactor(0.01), Unit: "%", DeviceClass: "battery", StateClass: "measurement"},
			FieldDescriptor{Key: "battery_" + id + "_soh", Offset: base + 2, Type: TypeU16, Scale: ByFactor(0.01), Unit: "%", StateClass: "measurement"},
			FieldDescriptor{Key: "battery_" + id + "_voltage", Offset: base + 4, Type: TypeU16, Scale: ByFactor(0.1), Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
			FieldDescriptor{Key: "battery_" + id + "_current", Offset: base + 6, Type: TypeI16, Scale: ByFactor(0.01), Unit: "A", DeviceClass: "current", StateClass: "measurement"},
			FieldDescriptor{Key: "battery_" + id + "_temperature", Offset: base + 8, Type: TypeI16, Scale: ByFactor(0.1), Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"},
			FieldDescriptor{Key: "battery_" + id + "_cycle", Offset: base + 10, Type: TypeU16},
		)
	}
	return fields
}

// ConfigDataFields are the operator settings (block 0x3247).
var ConfigDataFields = []FieldDescriptor{
	{Key: "app_mode", Offset: 0, Type: TypeU16, Map: appModeName, Enabled: true},
	{Key: "grid_charge_power_limit", Offset: 2, Type: TypeU16, Unit: "W", DeviceClass: "power", Enabled: true},
	{Key: "grid_feed_power_limit", Offset: 4, Type: TypeU16, Unit: "W", DeviceClass: "power", Enabled: true},
	{Key: "battery_soc_backup", Offset: 84, Type: TypeU16, Unit: "%", DeviceClass: "battery", Enabled: true},
	{Key: "battery_soc_high", Offset: 88, Type: TypeU16, Unit: "%", DeviceClass: "battery", Enabled: true},
	{Key: "battery_soc_low", Offset: 90, Type: TypeU16, Unit: "%", DeviceClass: "battery", Enabled: true},
}

// RegisterBlock is one poll unit: a contiguous register range and the fields
// decoded from its buffer.
type RegisterBlock struct {
	Name   string
	Start  uint16
	Count  uint16
	Fields []FieldDescriptor
}

var (
	RealtimeDataBlock = RegisterBlock{
		Name:   "realtime_data",
		Start:  RegRealtimeDataStart,
		Count:  RegRealtimeDataCount,
		Fields: append(append([]FieldDescriptor{}, RealtimeDataFields...), EnergyStatsFields()...),
	}
	InverterInfoBlock = RegisterBlock{
		Name:   "inverter_data",
		Start:  RegInverterInfoStart,
		Count:  RegInverterInfoCount,
		Fields: InverterInfoFields,
	}
	BatteryInfoBlock = RegisterBlock{
		Name:   "battery_data",
		Start:  RegBatteryInfoStart,
		Count:  RegBatteryInfoCount,
		Fields: BatteryInfoFields,
	}
	BatteryControllerBlock = RegisterBlock{
		Name:   "battery_controller_data",
		Start:  RegBatteryCtrlStart,
		Count:  RegBatteryCtrlCount,
		Fields: BatteryControllerFields,
	}
	ConfigDataBlock = RegisterBlock{
		Name:   "config_data",
		Start:  RegConfigStart,
		Count:  RegConfigCount,
		Fields: ConfigDataFields,
	}
)

// Blocks lists every pollable block in poll order.
func Blocks() []RegisterBlock {
	return []RegisterBlock{
		RealtimeDataBlock,
		InverterInfoBlock,
		BatteryInfoBlock,
		BatteryControllerBlock,
		ConfigDataBlock,
	}
}

// BlockByName resolves a block reference from the admin API.
func BlockByName(name string) (RegisterBlock, bool) {
	for _, b := range Blocks() {
		if b.Name == name {
			return b, true
		}
	}
	return RegisterBlock{}, false
}

// WritableRegister describes one operator-settable configuration register
// exposed as a number entity.
type WritableRegister struct {
	Key         string
	Register    uint16
	Min         float64
	Max         float64
	Step        float64
	Unit        string
	DeviceClass string
	Enabled     bool
}

// WritableRegisters lists the number entities. The app mode register is not
// here: it is a select, written through AppModeFromString.
var WritableRegisters = []WritableRegister{
	{Key: "grid_charge_power_limit", Register: RegGridChargePowerLimit, Min: 100, Max: 5000, Step: 100, Unit: "W", DeviceClass: "power"},
	{Key: "grid_feed_power_limit", Register: RegGridFeedPowerLimit, Min: 100, Max: 5000, Step: 100, Unit: "W", DeviceClass: "power"},
	{Key: "battery_soc_backup", Register: RegBatterySOCBackup, Min: 10, Max: 100, Step: 1, Unit: "%", DeviceClass: "battery", Enabled: true},
	{Key: "battery_soc_high", Register: RegBatterySOCHigh, Min: 50, Max: 100, Step: 1, Unit: "%", DeviceClass: "battery", Enabled: true},
	{Key: "battery_soc_low", Register: RegBatterySOCLow, Min: 10, Max: 50, Step: 1, Unit: "%", DeviceClass: "battery", Enabled: true},
}

// WritableRegisterByKey resolves a number entity by its key.
func WritableRegisterByKey(key string) (WritableRegister, bool) {
	for _, w := range WritableRegisters {
		if w.Key == key {
			return w, true
		}
	}
	return WritableRegister{}, false
}
