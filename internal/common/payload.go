package common

import "encoding/json"

// DecodePayload round-trips an opaque job/domain payload (typically a
// map[string]any once it's been through a JSON-backed store) into a typed
// target. Domain Service adapters use this to recover their specific
// payload shape from models.Job.Payload.
func DecodePayload(payload any, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return Wrap(ErrKindValidation, "common.DecodePayload", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return Wrap(ErrKindValidation, "common.DecodePayload", err)
	}
	return nil
}
