// Package protocol provides message types for talking to the injected peer.
// It defines the opcode table, the command/response/event envelopes, and the
// typed payload structures exchanged on both channels.
package protocol
