// Package midi provides the message model carried by device endpoints.
//
// Messages come in three representational shapes:
//
//   - Compact: a channel or system-common message packed into a uint32
//     (status in bits 0-7, first data byte in bits 8-15, second in 16-23).
//     ShortMessage is the value form of a packed message.
//   - Raw: a variable-length system exclusive payload framed by 0xF0 or 0xF7.
//     SysexMessage wraps it.
//   - Generic: anything implementing Message.
//
// All message values are immutable after construction, so a single message
// can be handed to any number of receivers without copying.
package midi
