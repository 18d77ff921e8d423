package domain

import "fmt"

// ControlRequest

type ControlRequest interface {
	ActorRequest
	ControlCommand() string
}

type ControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ControlRequestMixIn) ControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ControlResponse

type ControlResponse interface {
	ActorResponse
	ControlResponse() string
}

type ControlResponseMixIn struct {
	ActorResponseMixIn
}

func (r ControlResponseMixIn) ControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// Control commands. Both end up as one register write on the config block
// followed by a config refresh so published state converges.

type SetAppModeRequest struct {
	ControlRequestMixIn
	Mode uint16
}

type SetAppModeResponse struct {
	ControlResponseMixIn
	Mode uint16
}

type SetConfigNumberRequest struct {
	ControlRequestMixIn
	Key   string
	Value float64
}

type SetConfigNumberResponse struct {
	ControlResponseMixIn
	Key   string
	Value float64
}

// ensure interface compliance
var _ ControlRequest = (*SetAppModeRequest)(nil)
