// Package audio captures microphone input and turns it into the 16-bit mono
// PCM chunks the recognition stream expects. It handles float32 to PCM16
// conversion, linear resampling from the capture rate to the stream rate,
// fixed-duration chunking and the bounded hand-off queue to the sender.
package audio
