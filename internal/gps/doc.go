// Package gps runs the acquisition loop: it reads a receiver's byte stream,
// optionally gated by a pulse-per-second signal, frames and decodes NMEA
// sentences, disciplines the host clock and publishes the resulting Position.
//
// Byte sources: termios (Linux tty), bugst (portable serial), gpsd (raw NMEA
// passthrough) and file (capture replay or stdin).
// Pulse gates: the serial DCD line or a GPIO line.
package gps
