package pipeline

import "github.com/haivivi/voxpipe/pkg/audio/pdm"

// CaptureHandler receives microphone DMA events. Both methods are called
// from the interrupt side and never block.
type CaptureHandler interface {
	// PDMReady reports that channel ch completed half h at timer value
	// ticks. The half has already been handed to the reader.
	PDMReady(ch int, h pdm.Half, ticks uint32)

	// PDMError reports a DMA error on channel ch.
	PDMError(ch int)
}

// MicArray is the PDM microphone capture hardware.
type MicArray interface {
	// Configure binds one ping-pong buffer per channel and the handler. It
	// is called once, before Start.
	Configure(bufs []*pdm.PingPong[uint32], h CaptureHandler) error

	// Start begins capturing into the writer halves.
	Start() error

	// Stop ends capturing. No handler method is called after Stop returns.
	Stop() error
}
