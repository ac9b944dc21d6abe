package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rmax-ai/meshgraph/pkg/model"
)

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	payloadEncoder, _ = zstd.NewWriter(nil)
	payloadDecoder, _ = zstd.NewReader(nil)
)

// EncodeModel serializes a model as zstd-compressed JSON.
func EncodeModel(m *model.Model) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}
	return payloadEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// DecodeModel reverses EncodeModel. Endpoint consistency is not checked.
func DecodeModel(payload []byte) (*model.Model, error) {
	raw, err := payloadDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress model: %w", err)
	}
	m := model.NewModel()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	return m, nil
}

func newSnapshotID() string {
	return "snap_" + uuid.New().String()
}
