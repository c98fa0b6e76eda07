package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformedFrame is returned for frames that do not parse as a valid
// Envelope or whose payload does not match the shape its type implies.
var ErrMalformedFrame = errors.New("protocol: malformed message")

// Codec decodes inbound frames and encodes outbound ones. It is stateless
// and safe for concurrent use, mirroring the teacher's Protocol type.
type Codec struct{}

// NewCodec constructs a Codec.
func NewCodec() *Codec { return &Codec{} }

// DecodeEnvelope parses the outer {type, payload} shape of an inbound frame.
func (c *Codec) DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	if env.Type == "" {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, "missing type")
	}
	return env, nil
}

// DecodeJoin decodes a join payload.
func (c *Codec) DecodeJoin(payload json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// DecodeReconnect decodes a reconnect payload.
func (c *Codec) DecodeReconnect(payload json.RawMessage) (ReconnectPayload, error) {
	var p ReconnectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// DecodeSetConfig decodes a set_config payload.
func (c *Codec) DecodeSetConfig(payload json.RawMessage) (SetConfigPayload, error) {
	var p SetConfigPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// DecodeStartGame decodes a start_game payload.
func (c *Codec) DecodeStartGame(payload json.RawMessage) (StartGamePayload, error) {
	var p StartGamePayload
	if len(payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// DecodeMatchAttempt decodes a match_attempt payload.
func (c *Codec) DecodeMatchAttempt(payload json.RawMessage) (MatchAttemptPayload, error) {
	var p MatchAttemptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// DecodePing decodes a ping payload.
func (c *Codec) DecodePing(payload json.RawMessage) (PingPayload, error) {
	var p PingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return p, nil
}

// Encode marshals a typed payload into a full {type, payload} frame.
func (c *Codec) Encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	env := Envelope{Type: msgType, Payload: raw}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return out, nil
}
