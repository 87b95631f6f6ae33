package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by Decode for an envelope type outside the inbound union.
var ErrUnknownEvent = errors.New("unknown event type")

type envelope[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type rawEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps an outbound event in its envelope.
func Encode(ev Outbound) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode: nil event")
	}
	return json.Marshal(envelope[Outbound]{Type: ev.OutboundType(), Payload: ev})
}

// EncodeInbound wraps an authority event. Used by fakes standing in for the authority.
func EncodeInbound(ev Inbound) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode: nil event")
	}
	return json.Marshal(envelope[Inbound]{Type: ev.InboundType(), Payload: ev})
}

// Decode parses an authority frame into its inbound event.
func Decode(data []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypePrivateCreated:
		return decodePayload[PrivateCreated](env)
	case TypeMatchFound:
		return decodePayload[MatchFound](env)
	case TypeGameStarted:
		return decodePayload[GameStarted](env)
	case TypeWaitingForOpponent:
		return WaitingForOpponent{}, nil
	case TypeOpponentAnswered:
		return OpponentAnswered{}, nil
	case TypeRoundOver:
		return decodePayload[RoundOver](env)
	case TypeGameOver:
		return decodePayload[GameOver](env)
	case TypeError:
		return decodePayload[Error](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// DecodeOutbound parses a client frame. Used by fakes standing in for the authority.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeJoinQueue:
		return decodePayload[JoinQueue](env)
	case TypeLeaveQueue:
		return LeaveQueue{}, nil
	case TypeCreatePrivate:
		return decodePayload[CreatePrivate](env)
	case TypeJoinPrivate:
		return decodePayload[JoinPrivate](env)
	case TypeSubmitAnswer:
		return decodePayload[SubmitAnswer](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodePayload[T any](env rawEnvelope) (T, error) {
	var out T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
