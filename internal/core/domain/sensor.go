package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"sajh1mqtt/pkg/saj"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_INVERTER_TIME   = "inverter_time"
	SELECT_ID_APP_MODE        = "app_mode"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	DEVICE_CLASS_TIMESTAMP    = "timestamp"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	ENTITY_CLASS_CONFIG       = "config"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX     = "box"
	INPUT_NUMBER_MODE_SLIDER  = "slider"
)

// EntityPrefix scopes every entity id. With the serial prefix enabled two
// inverters can share a broker without colliding ids.
func EntityPrefix(serial string, useSerial bool) string {
	if useSerial && serial != "" {
		return "saj_" + strings.ToLower(serial)
	}
	return "saj_h1"
}

func EntityId(prefix, key string) string {
	return fmt.Sprintf("%s_%s", prefix, key)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sajh1mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "sajh1mqtt",
		Model:        "SAJ H1 MQTT bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SAJ H1 bridge %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(serial string) Device {
	return Device{
		Id:           fmt.Sprintf("saj_inverter_%s", md5HashShort(serial)),
		Manufacturer: "SAJ",
		Model:        "H1",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SAJ H1 %s", serial),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id: device.Id,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// SensorFields filters a block down to the fields that surface as sensors.
// Raw helper fields (clock bytes, BMS type codes, fault words) stay
// reachable through the admin read endpoint but get no entity.
func SensorFields(block saj.RegisterBlock) []saj.FieldDescriptor {
	var fields []saj.FieldDescriptor
	for _, f := range block.Fields {
		if isSensorField(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

func isSensorField(f saj.FieldDescriptor) bool {
	if f.Unit != "" || f.Map != nil || f.Type == saj.TypeText {
		return true
	}
	return f.Scale != nil && f.Scale.Fixed
}

// BlockSensors builds the discovery records for one register block.
func BlockSensors(device Device, prefix string, block saj.RegisterBlock, diagnostic bool) []GenericSensor {

	var sensors []GenericSensor

	category := ""
	if diagnostic {
		category = ENTITY_CLASS_DIAGNOSTIC
	}

	for _, f := range SensorFields(block) {
		id := EntityId(prefix, f.Key)
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              displayName(f.Key),
			UnitOfMeasurement: f.Unit,
			DeviceClass:       f.DeviceClass,
			StateClass:        f.StateClass,
			EntityCategory:    category,
			EnabledByDefault:  enabledByDefault(f.Enabled),
			UniqueId:          uniqueId(device.Id, id),
		})
	}

	return sensors
}

// RealtimeExtraSensors covers the derived power flow entities and the
// inverter clock. Ids stay the same with the accurate power variant; only
// the backing registers change.
func RealtimeExtraSensors(device Device, prefix string) []GenericSensor {

	var sensors []GenericSensor

	for _, f := range saj.RealtimeDerivedFields() {
		id := EntityId(prefix, f.Key)
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              displayName(f.Key),
			UnitOfMeasurement: f.Unit,
			DeviceClass:       f.DeviceClass,
			StateClass:        f.StateClass,
			EnabledByDefault:  enabledByDefault(f.Enabled),
			UniqueId:          uniqueId(device.Id, id),
		})
	}

	// Inverter clock
	id := EntityId(prefix, SENSOR_ID_INVERTER_TIME)
	sensors = append(sensors, GenericSensor{
		Device:           device,
		Id:               id,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Inverter time",
		DeviceClass:      DEVICE_CLASS_TIMESTAMP,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: enabledByDefault(false),
		UniqueId:         uniqueId(device.Id, id),
	})

	return sensors
}

func AppModeSelect(device Device, prefix string) GenericSelect {
	id := EntityId(prefix, SELECT_ID_APP_MODE)
	return GenericSelect{
		Device:   device,
		Id:       id,
		Name:     "App mode",
		UniqueId: uniqueId(device.Id, id),
		Icon:     "mdi:cog-transfer",
		Options:  saj.AppModeNames(),
	}
}

func ConfigInputNumbers(device Device, prefix string) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	for _, w := range saj.WritableRegisters {
		id := EntityId(prefix, w.Key)
		inputNumbers = append(inputNumbers, GenericInputNumber{
			Device:            device,
			Id:                id,
			Name:              displayName(w.Key),
			UniqueId:          uniqueId(device.Id, id),
			Icon:              numberIcon(w),
			UnitOfMeasurement: w.Unit,
			DeviceClass:       w.DeviceClass,
			Max:               w.Max,
			Min:               w.Min,
			Step:              w.Step,
			Mode:              INPUT_NUMBER_MODE_BOX,
			EnabledByDefault:  enabledByDefault(w.Enabled),
		})
	}

	return inputNumbers
}

func numberIcon(w saj.WritableRegister) string {
	if w.Unit == "%" {
		return "mdi:battery-sync"
	}
	return "mdi:transmission-tower"
}

func displayName(key string) string {
	name := strings.ReplaceAll(key, "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

// enabledByDefault maps the descriptor flag to the discovery payload form:
// enabled entities omit the field, disabled ones carry an explicit false.
func enabledByDefault(enabled bool) *bool {
	if enabled {
		return nil
	}
	return optionalBool(false)
}

func optionalBool(value bool) *bool {
	return &value
}
