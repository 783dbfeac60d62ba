package amp

// Transfer is one DMA transmission. Transfers are owned by the Amplifier and
// reused; a Port must not keep a reference after reporting completion.
type Transfer struct {
	Data []byte

	// slot is the write slot index, or -1 for state machine chunks.
	slot int
}

// Handler receives transfer completions. TxComplete is the interrupt side
// of the amplifier: it never blocks.
type Handler interface {
	TxComplete(tx *Transfer)
}

// Port is the amplifier DMA.
type Port interface {
	// Bind registers the completion handler. It is called once, before
	// any Send.
	Bind(h Handler)

	// Send queues tx for transmission and returns without waiting for it.
	Send(tx *Transfer) error

	// Terminate cancels every queued or in-flight transfer. No completion
	// is reported for cancelled transfers.
	Terminate()
}

// Tap observes every transfer on its way to the port. Transmit must call
// send exactly once unless it returns an error before doing so.
type Tap interface {
	Transmit(p []byte, send func() error) error
}
