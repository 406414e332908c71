// Package imagegen is the driver port for chapter image generation. It
// wraps an image generation endpoint with the same rate-limit/circuit-
// break/retry policy as the other driver ports and reports estimated
// cost per image.
package imagegen
