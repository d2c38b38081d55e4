package decoder

import (
	"fmt"

	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

// DigestLogKind classifies one header digest log entry.
type DigestLogKind string

const (
	DigestConsensus                 DigestLogKind = "Consensus"
	DigestSeal                      DigestLogKind = "Seal"
	DigestPreRuntime                DigestLogKind = "PreRuntime"
	DigestRuntimeEnvironmentUpdated DigestLogKind = "RuntimeEnvironmentUpdated"
	DigestOther                     DigestLogKind = "Other"
)

// DigestLog is one decoded header digest entry.
type DigestLog struct {
	Type   DigestLogKind
	Engine *string // 4-byte ASCII engine id, nil for kinds that carry none
	Data   string  // hex payload
}

// DecodeDigestLogs decodes the header's digest.logs array: one hex blob
// per entry, tag byte first.
func DecodeDigestLogs(hexLogs []string) ([]DigestLog, error) {
	logs := make([]DigestLog, 0, len(hexLogs))
	for i, h := range hexLogs {
		log, err := decodeDigestLog(h)
		if err != nil {
			return nil, fmt.Errorf("digest log %d: %w", i, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func decodeDigestLog(hexStr string) (DigestLog, error) {
	data, err := scale.HexToBytes(hexStr)
	if err != nil {
		return DigestLog{}, fmt.Errorf("decode hex: %w", err)
	}
	if len(data) == 0 {
		return DigestLog{}, fmt.Errorf("empty digest log")
	}

	tag := data[0]
	switch tag {
	case 0x04, 0x05, 0x06: // Consensus, Seal, PreRuntime
		if len(data) < 5 {
			return DigestLog{}, fmt.Errorf("engine id overruns buffer")
		}
		engine := string(data[1:5])
		length, offset, err := scale.DecodeCompactUint64(data, 5)
		if err != nil {
			return DigestLog{}, fmt.Errorf("read payload length: %w", err)
		}
		if uint64(offset)+length > uint64(len(data)) {
			return DigestLog{}, fmt.Errorf("payload overruns buffer")
		}
		return DigestLog{
			Type:   digestKindForTag(tag),
			Engine: &engine,
			Data:   scale.BytesToHex(data[offset : uint64(offset)+length]),
		}, nil

	case 0x08: // RuntimeEnvironmentUpdated
		return DigestLog{Type: DigestRuntimeEnvironmentUpdated}, nil

	case 0x00: // Other
		length, offset, err := scale.DecodeCompactUint64(data, 1)
		if err != nil {
			return DigestLog{}, fmt.Errorf("read payload length: %w", err)
		}
		if uint64(offset)+length > uint64(len(data)) {
			return DigestLog{}, fmt.Errorf("payload overruns buffer")
		}
		return DigestLog{Type: DigestOther, Data: scale.BytesToHex(data[offset : uint64(offset)+length])}, nil

	default:
		return DigestLog{Type: DigestOther, Data: hexStr}, nil
	}
}

func digestKindForTag(tag byte) DigestLogKind {
	switch tag {
	case 0x04:
		return DigestConsensus
	case 0x05:
		return DigestSeal
	case 0x06:
		return DigestPreRuntime
	default:
		return DigestOther
	}
}
