// Package detector recognises sequential two-tone pages in an audio stream.
//
// Sequencer is the timing state machine: it consumes one spectral estimate
// per audio block together with the block's arrival time and reports
// tone A, tone B, tone pair and timeout events. Detector glues an audio
// source, the spectral analyzer and a Sequencer together and publishes the
// events on a bus.
package detector
