package message

// AudioFrame is a one-way message carrying PCM audio samples plus the frame
// metadata a consumer needs to interpret them.
type AudioFrame struct {
	envelope
	sampleRate     int
	channels       int
	bytesPerSample int
	data           []byte
}

// NewAudioFrame creates an audio frame message with the given routing name.
func NewAudioFrame(name string) *AudioFrame {
	return &AudioFrame{envelope: newEnvelope(name)}
}

// Kind returns KindAudioFrame.
func (f *AudioFrame) Kind() Kind { return KindAudioFrame }

// SampleRate returns the sample rate in Hz.
func (f *AudioFrame) SampleRate() int { return f.sampleRate }

// SetSampleRate sets the sample rate in Hz.
func (f *AudioFrame) SetSampleRate(hz int) { f.sampleRate = hz }

// Channels returns the channel count.
func (f *AudioFrame) Channels() int { return f.channels }

// SetChannels sets the channel count.
func (f *AudioFrame) SetChannels(n int) { f.channels = n }

// BytesPerSample returns the sample width in bytes.
func (f *AudioFrame) BytesPerSample() int { return f.bytesPerSample }

// SetBytesPerSample sets the sample width in bytes.
func (f *AudioFrame) SetBytesPerSample(n int) { f.bytesPerSample = n }

// Data returns the raw sample buffer.
func (f *AudioFrame) Data() []byte { return f.data }

// SetData stores the raw sample buffer.
func (f *AudioFrame) SetData(b []byte) { f.data = b }

// Clone returns a deep copy with a fresh id.
func (f *AudioFrame) Clone() Message {
	dup := &AudioFrame{
		envelope:       f.cloneEnvelope(),
		sampleRate:     f.sampleRate,
		channels:       f.channels,
		bytesPerSample: f.bytesPerSample,
	}
	if f.data != nil {
		dup.data = make([]byte, len(f.data))
		copy(dup.data, f.data)
	}
	return dup
}

// VideoFrame is a one-way message carrying one video frame.
type VideoFrame struct {
	envelope
	width       int
	height      int
	pixelFormat string
	data        []byte
}

// NewVideoFrame creates a video frame message with the given routing name.
func NewVideoFrame(name string) *VideoFrame {
	return &VideoFrame{envelope: newEnvelope(name)}
}

// Kind returns KindVideoFrame.
func (f *VideoFrame) Kind() Kind { return KindVideoFrame }

// Width returns the frame width in pixels.
func (f *VideoFrame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *VideoFrame) Height() int { return f.height }

// SetDimensions sets the frame width and height in pixels.
func (f *VideoFrame) SetDimensions(w, h int) {
	f.width = w
	f.height = h
}

// PixelFormat returns the pixel format identifier (e.g. "rgb24", "i420").
func (f *VideoFrame) PixelFormat() string { return f.pixelFormat }

// SetPixelFormat sets the pixel format identifier.
func (f *VideoFrame) SetPixelFormat(format string) { f.pixelFormat = format }

// Data returns the raw frame buffer.
func (f *VideoFrame) Data() []byte { return f.data }

// SetData stores the raw frame buffer.
func (f *VideoFrame) SetData(b []byte) { f.data = b }

// Clone returns a deep copy with a fresh id.
func (f *VideoFrame) Clone() Message {
	dup := &VideoFrame{
		envelope:    f.cloneEnvelope(),
		width:       f.width,
		height:      f.height,
		pixelFormat: f.pixelFormat,
	}
	if f.data != nil {
		dup.data = make([]byte, len(f.data))
		copy(dup.data, f.data)
	}
	return dup
}
