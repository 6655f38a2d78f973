package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franz/musicsync/internal/util"
)

// Envelope is the wire and oplog form of a loggable command
type Envelope struct {
	GUID      string          `json:"guid"`
	Kind      Kind            `json:"kind"`
	Singleton bool            `json:"singleton,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope
func NewEnvelope(guid string, kind Kind, singleton bool, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return &Envelope{GUID: guid, Kind: kind, Singleton: singleton, Payload: raw}, nil
}

// ParseEnvelope decodes and validates the envelope header
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMalformed, err)
	}
	if strings.TrimSpace(env.GUID) == "" {
		return nil, fmt.Errorf("%w: envelope without guid", util.ErrMalformed)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: envelope without payload", util.ErrMalformed)
	}
	return &env, nil
}

// Decode rebuilds a command from an envelope received from peer.
// The command keeps the sender's guid. Only mutating kinds can be replayed.
func Decode(env *Envelope, peer string) (Loggable, error) {
	switch env.Kind {
	case KindAddFiles:
		var wire []FileRecord
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return nil, fmt.Errorf("%w: addfiles payload: %v", util.ErrMalformed, err)
		}
		for i := range wire {
			if err := wire[i].validate(); err != nil {
				return nil, fmt.Errorf("%w: addfiles entry %d: %v", util.ErrMalformed, i, err)
			}
			wire[i].ID = 0
		}
		cmd := NewAddFiles(peer, wire)
		cmd.guid = env.GUID
		return cmd, nil

	case KindAddSource:
		var p addSourcePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: addsource payload: %v", util.ErrMalformed, err)
		}
		if strings.TrimSpace(p.Username) == "" {
			return nil, fmt.Errorf("%w: addsource without username", util.ErrMalformed)
		}
		cmd := NewAddSource(p.Username, p.FriendlyName)
		cmd.Origin = peer
		cmd.guid = env.GUID
		return cmd, nil

	default:
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownCommand, env.Kind)
	}
}
