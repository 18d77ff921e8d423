package events

import (
	"time"

	. "sajh1mqtt/internal/core/domain"
	"sajh1mqtt/pkg/saj"

	"github.com/reugn/go-quartz/logger"
)

// BlockUpdateEvents maps a freshly polled block buffer to sensor update
// events. A field that fails to decode is logged and skipped, the rest of
// the block still publishes.
//
// The config block is all control entities, so it maps to select and number
// state events instead of plain sensor states.
func BlockUpdateEvents(prefix string, block saj.RegisterBlock, buf []byte, accuratePower bool) []any {
	if block.Name == saj.ConfigDataBlock.Name {
		return configControlEvents(prefix, buf)
	}

	var events []any

	for _, f := range SensorFields(block) {
		if event := fieldUpdateEvent(prefix, f, buf); event != nil {
			events = append(events, event)
		}
	}

	if block.Name == saj.RealtimeDataBlock.Name {
		events = append(events, realtimeDerivedEvents(prefix, buf, accuratePower)...)
	}

	return events
}

func fieldUpdateEvent(prefix string, d saj.FieldDescriptor, buf []byte) any {
	value, err := saj.DecodeField(buf, d)
	if err != nil {
		logger.Error(err)
		return nil
	}
	if value == nil {
		return nil
	}
	id := EntityId(prefix, d.Key)
	if value.IsText {
		return TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: id,
			},
			Value: value.Text,
		}
	}
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value.Float,
		Decimals: uint(value.Decimals),
	}
}

func realtimeDerivedEvents(prefix string, buf []byte, accuratePower bool) []any {
	var events []any

	for _, f := range saj.RealtimeDerivedFields() {
		d := f
		if accuratePower {
			// Grid readings come from smart meter 1, the system load gets
			// summed below.
			switch {
			case f.Key == saj.AccurateGridPowerField.Key && f.Map == nil:
				d = saj.AccurateGridPowerField
			case f.Key == saj.AccurateGridStateField.Key && f.Map != nil:
				d = saj.AccurateGridStateField
			case f.Key == saj.FlowLoadPowerField.Key || f.Key == saj.FlowLoadStateField.Key:
				continue
			}
		}
		if event := fieldUpdateEvent(prefix, d, buf); event != nil {
			events = append(events, event)
		}
	}

	if accuratePower {
		events = append(events, accurateLoadEvents(prefix, buf)...)
	}

	// Inverter clock
	if t, err := saj.DecodeTimestamp(buf, 0); err != nil {
		logger.Error(err)
	} else if t != nil {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: EntityId(prefix, SENSOR_ID_INVERTER_TIME),
			},
			Value: t.Format(time.RFC3339),
		})
	}

	return events
}

// accurateLoadEvents sums the backup load meter with both smart meter
// channels. A channel that fails to decode counts as zero so one bad word
// does not drop the whole reading.
func accurateLoadEvents(prefix string, buf []byte) []any {
	var sum float64
	for _, d := range []saj.FieldDescriptor{saj.FlowLoadPowerField, saj.AccurateGridPowerField, saj.FlowGridPowerField} {
		value, err := saj.DecodeField(buf, d)
		if err != nil {
			logger.Error(err)
			continue
		}
		if value != nil {
			sum += value.Float
		}
	}
	return []any{
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: EntityId(prefix, saj.FlowLoadPowerField.Key),
			},
			Value:    sum,
			Decimals: 1,
		},
		TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: EntityId(prefix, saj.FlowLoadStateField.Key),
			},
			Value: saj.LoadStateName(sum),
		},
	}
}

func configControlEvents(prefix string, buf []byte) []any {
	var events []any

	for _, d := range saj.ConfigDataFields {
		value, err := saj.DecodeField(buf, d)
		if err != nil {
			logger.Error(err)
			continue
		}
		if value == nil {
			continue
		}
		id := EntityId(prefix, d.Key)
		if d.Key == SELECT_ID_APP_MODE {
			events = append(events, SelectSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: id,
				},
				Value: value.Text,
			})
			continue
		}
		events = append(events, InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: id,
			},
			Value:    value.Float,
			Decimals: uint(value.Decimals),
		})
	}

	return events
}
