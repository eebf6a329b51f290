// Package vad classifies capture frames as speech or silence using a mean
// absolute energy estimate against a static threshold, and drives the
// utterance state machine with asymmetric start/stop debouncing.
package vad
