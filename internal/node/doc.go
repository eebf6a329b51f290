// Package node runs the sensor-side pipeline: it drains capture frames
// from the hand-off cell, scores each frame with the voice activity
// detector, and streams the frames of active utterances to the collector
// over UDP, reconnecting the link with bounded backoff when it drops.
package node
