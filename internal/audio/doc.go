// Package audio delivers fixed-size blocks of signed 16-bit mono PCM.
//
// A Source streams Blocks to a callback until its context is cancelled or
// the input ends. Three sources exist: raw little-endian PCM from any
// reader (stdin, usually fed by arecord), the same from a file replayed on a
// sample clock, and L16 RTP from a ka9q-radio style multicast stream.
// ListDevices enumerates ALSA capture devices so the operator can pick the
// arecord device feeding stdin.
package audio
