// Package pipeline turns PDM microphone captures into recognition-ready
// 16 kHz PCM blocks, with echo reference from the loudspeaker path.
//
// Three goroutines cooperate:
//
//   - the Orchestrator waits on an EventGroup set by the capture and
//     loopback interrupts, decimates every channel of a completed capture
//     half into a PCM frame, attaches the matching echo reference and
//     notifies the processor once all channels of that half are ready;
//   - the Processor runs the acoustic front end on each half, accumulates
//     the clean output and pushes fixed-size blocks into a bounded queue;
//   - the amplifier send goroutine (package amp) plays audio and feeds the
//     loopback synchronizer.
//
// The Pipeline type wires them to the hardware ports and exposes the
// control surface (mute, volume, loopback, playback) and ReadBlock for the
// recognizer.
package pipeline
