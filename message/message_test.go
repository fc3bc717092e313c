package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHasUniqueIDAndOrigin(t *testing.T) {
	a := NewCommand("ping")
	b := NewCommand("ping")

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.ID(), a.OriginID(), "fresh command is its own origin")
	assert.Equal(t, KindCommand, a.Kind())
	assert.Equal(t, FirstResultWins, a.ResultPolicy())
}

func TestSourceIsImmutableAfterFirstSet(t *testing.T) {
	cmd := NewCommand("ping")
	assert.True(t, cmd.Source().IsZero())

	first := Location{Group: "g1", Extension: "a"}
	cmd.SetSource(first)
	cmd.SetSource(Location{Group: "g2", Extension: "b"})

	assert.Equal(t, first, cmd.Source())
}

func TestCommandCloneKeepsOriginAndIsolatesProperties(t *testing.T) {
	cmd := NewCommand("ping")
	cmd.SetSource(Location{Group: "g1", Extension: "a"})
	require.NoError(t, cmd.Properties().Set("text", "hello"))
	require.NoError(t, cmd.Properties().Set("raw", []byte{1, 2, 3}))

	clone := cmd.Clone().(*Command)

	assert.NotEqual(t, cmd.ID(), clone.ID(), "clone gets a fresh identity")
	assert.Equal(t, cmd.OriginID(), clone.OriginID(), "clone correlates to the origin")
	assert.Equal(t, cmd.Source(), clone.Source())

	// Mutating the clone must not leak into the original.
	require.NoError(t, clone.Properties().Set("text", "changed"))
	raw := clone.Properties().GetBytes("raw")
	raw[0] = 99

	assert.Equal(t, "hello", cmd.Properties().GetString("text", ""))
	assert.Equal(t, []byte{1, 2, 3}, cmd.Properties().GetBytes("raw"))
}

func TestResultForCorrelatesToOrigin(t *testing.T) {
	cmd := NewCommand("ping")
	fanned := cmd.Clone().(*Command)

	res := ResultFor(StatusOk, fanned)

	assert.Equal(t, cmd.ID(), res.InResponseTo(), "result correlates to the originating command")
	assert.True(t, res.IsFinal())
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
}

func TestErrorResultCarriesDetail(t *testing.T) {
	cmd := NewCommand("transcribe")
	res := ErrorResultFor(cmd, "model unavailable")

	assert.Equal(t, StatusError, res.Status())
	assert.EqualError(t, res.Err(), "command failed: model unavailable")
}

func TestCmdResultWireShape(t *testing.T) {
	cmd := NewCommand("ping")
	res := ResultFor(StatusNoRoute, cmd)
	require.NoError(t, res.Properties().Set("attempts", 2))

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, cmd.ID(), wire["in_response_to"])
	assert.Equal(t, "no_route", wire["status_code"])
	assert.Equal(t, true, wire["is_final"])

	var decoded CmdResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StatusNoRoute, decoded.Status())
	assert.Equal(t, cmd.ID(), decoded.InResponseTo())
	assert.Equal(t, int64(2), decoded.Properties().GetInt("attempts", 0))
}

func TestCommandWireRoundTrip(t *testing.T) {
	cmd := NewCommand("flush")
	require.NoError(t, cmd.Properties().Set("force", true))

	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	var decoded Command
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cmd.ID(), decoded.ID())
	assert.Equal(t, decoded.ID(), decoded.OriginID())
	assert.Equal(t, "flush", decoded.Name())
	assert.True(t, decoded.Properties().GetBool("force", false))
}

func TestAudioFrameCloneIsolatesBuffer(t *testing.T) {
	frame := NewAudioFrame("pcm")
	frame.SetSampleRate(16000)
	frame.SetChannels(1)
	frame.SetBytesPerSample(2)
	frame.SetData([]byte{10, 20, 30})

	dup := frame.Clone().(*AudioFrame)
	dup.Data()[0] = 0

	assert.Equal(t, []byte{10, 20, 30}, frame.Data())
	assert.Equal(t, 16000, dup.SampleRate())
	assert.Equal(t, KindAudioFrame, dup.Kind())
	assert.NotEqual(t, frame.ID(), dup.ID())
}

func TestVideoFrameMetadata(t *testing.T) {
	frame := NewVideoFrame("camera")
	frame.SetDimensions(640, 480)
	frame.SetPixelFormat("i420")

	dup := frame.Clone().(*VideoFrame)
	assert.Equal(t, 640, dup.Width())
	assert.Equal(t, 480, dup.Height())
	assert.Equal(t, "i420", dup.PixelFormat())
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "cmd", KindCommand.String())
	assert.Equal(t, "cmd_result", KindCmdResult.String())
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "audio_frame", KindAudioFrame.String())
	assert.Equal(t, "video_frame", KindVideoFrame.String())
}
