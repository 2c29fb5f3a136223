// Package protocol implements the binary wire form used between a server
// that owns a mounted root and a thin client that owns the live tree.
//
// The server diffs on its side and ships the resulting vdom.Patch; the
// client applies it to its local reconciler and sends native events back
// by path and event name. Decoders and mappers never cross the wire: the
// client only needs listener options to know which events to forward.
//
// # Wire Format
//
// Every message is one frame with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameMount (0x01): server → client, full tree with sequence number
//   - FramePatch (0x02): server → client, sequenced Patch
//   - FrameEvent (0x03): client → server, path + event name + payload
//   - FrameControl (0x04): ping, pong, remount requests, close
//   - FrameError (0x05): error message
//
// # Encoding
//
//   - Varint: compact encoding for counts and indices (protobuf-style)
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with varint length
//   - Big-endian: fixed-width integers (uint16, uint32, uint64)
//
// Recursive structures (nodes, patches) are decoded under depth limits and
// every length or count prefix is checked against allocation limits before
// anything is allocated.
package protocol
