package domain

import (
	"errors"
	"time"
)

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_BRIDGE        = "bridge"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
	ACTOR_ID_POLLER_PREFIX = "poller_"
)

// Transport request failure kinds. The bridge wraps these with register
// context, callers branch with errors.Is.
var (
	ErrRequestTimeout   = errors.New("no device response before deadline")
	ErrTransportDown    = errors.New("device transport down")
	ErrRequestCancelled = errors.New("request cancelled")
	ErrNotReady         = errors.New("no data polled yet")
	ErrUnknownBlock     = errors.New("unknown register block")
)

// ReadRegistersRequest reads Count holding registers starting at Start
// through the device transport. Count may exceed a single query; the
// transport splits it and concatenates the returned payloads.
type ReadRegistersRequest struct {
	ActorRequestMixIn
	Start uint16
	Count uint16
}

type ReadRegistersResponse struct {
	ActorResponseMixIn
	Start uint16
	Count uint16
	Data  []byte
}

type WriteRegisterRequest struct {
	ActorRequestMixIn
	Register uint16
	Value    uint16
}

type WriteRegisterResponse struct {
	ActorResponseMixIn
	Register uint16
	Value    uint16
}

// BlockSnapshotRequest asks a poll coordinator for its cached buffer. Sent
// to the master with a Block name, which routes it to the coordinator.
type BlockSnapshotRequest struct {
	ActorRequestMixIn
	Block string
}

type BlockSnapshotResponse struct {
	ActorResponseMixIn
	Block      string
	Ready      bool
	Data       []byte
	LastUpdate time.Time
}

// RefreshBlockRequest triggers an immediate out-of-cycle poll.
type RefreshBlockRequest struct {
	ActorRequestMixIn
	Block string
}

type RefreshBlockResponse struct {
	ActorResponseMixIn
	Block string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Selects      []GenericSelect
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
