// Package collector receives the UDP audio stream from the sensor nodes,
// reassembles per-device utterances from sequenced datagrams, and writes
// each finished utterance to disk as a WAV recording. A small HTTP API
// exposes health, per-device state, and Prometheus metrics.
package collector
