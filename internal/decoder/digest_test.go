package decoder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

func TestDecodeDigestLogsPreRuntime(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x06) // PreRuntime
	buf.WriteString("BABE")
	payload := []byte{1, 2, 3, 4}
	buf.Write(scale.EncodeCompact(uint64(len(payload))))
	buf.Write(payload)

	logs, err := DecodeDigestLogs([]string{scale.BytesToHex(buf.Bytes())})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, DigestPreRuntime, logs[0].Type)
	require.NotNil(t, logs[0].Engine)
	require.Equal(t, "BABE", *logs[0].Engine)
	require.Equal(t, scale.BytesToHex(payload), logs[0].Data)
}

func TestDecodeDigestLogsRuntimeEnvironmentUpdatedHasNoPayload(t *testing.T) {
	logs, err := DecodeDigestLogs([]string{"0x08"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, DigestRuntimeEnvironmentUpdated, logs[0].Type)
	require.Nil(t, logs[0].Engine)
}

func TestDecodeDigestLogsOther(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	payload := []byte{0xaa, 0xbb}
	buf.Write(scale.EncodeCompact(uint64(len(payload))))
	buf.Write(payload)

	logs, err := DecodeDigestLogs([]string{scale.BytesToHex(buf.Bytes())})
	require.NoError(t, err)
	require.Equal(t, DigestOther, logs[0].Type)
}
