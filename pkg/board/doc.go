// Package board simulates the hardware of the reference board: a PDM
// microphone array fed by a sigma-delta modulator, the amplifier transmit
// DMA with an optional receive mirror, and a free-running timer.
//
// Every port implements the corresponding pipeline, amp or loopback
// interface and paces itself with real timers, so a Pipeline runs on a
// Board exactly as it would on the device.
package board
