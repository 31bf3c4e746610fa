// Package link drives a rendered sketch over a serial port.
package link

// The link carries three kinds of frames, each ended by a terminator chosen
// when the sketch is rendered:
//
//   command   host writes the decimal identifier and the command
//             terminator, the board answers "ok" and the command terminator
//             and latches the identifier.
//   data      host writes the payload with spaces replaced by the
//             substitution token and the data terminator, the board answers
//             "ok" and the data terminator.
//   response  board writes text and the data terminator, nothing is
//             acknowledged.
//
// A single round trip (command, optional data, optional response) is an
// exchange. Exchanges are serialized per session.
