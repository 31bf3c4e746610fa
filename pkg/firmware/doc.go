// Package firmware generates the Arduino sketch a bridge flashes onto a board.
package firmware

// Devices are declared against a Registry, which assigns every device method a
// command identifier. Render turns the ordered descriptors into a complete
// sketch from a fixed skeleton. The skeleton carries the device side of the
// serial protocol: the host writes a decimal command identifier followed by the
// command terminator, the sketch acknowledges with "ok" and latches the
// identifier, and the loop dispatches the latched identifier to exactly one
// generated clause which resets the latch to IdleCommand when it finishes.
//
// Identifiers are only meaningful against the sketch they were rendered into.
// Reordering declarations changes the identifiers, so a host must talk to a
// board running the program rendered from the same registry.
