package agent

import (
	"encoding/json"
	"fmt"
)

// Serialize renders the checkpoint as JSON. Serialize then Restore
// reproduces an equivalent snapshot.
func (c Checkpoint) Serialize() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serialize checkpoint: %w", err)
	}
	return data, nil
}

// RestoreCheckpoint parses a serialized checkpoint.
func RestoreCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("restore checkpoint: %w", err)
	}
	if cp.RunID == "" {
		return Checkpoint{}, fmt.Errorf("restore checkpoint: missing run id")
	}
	return cp, nil
}
