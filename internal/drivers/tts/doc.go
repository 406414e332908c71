// Package tts is the driver port for chapter narration speech synthesis.
// It wraps a text-to-speech endpoint with the shared rate-limit/circuit-
// break/retry policy and reports synthesized audio duration and
// estimated cost per character.
package tts
