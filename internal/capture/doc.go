// Package capture owns the boundary between the asynchronous audio source
// and the processing loop: a single-producer/single-consumer frame cell
// with an atomic ready word and drop-oldest overrun policy, plus the
// Source implementations that fill it.
package capture
