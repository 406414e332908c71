// Package publish is the driver port for publishing the final approved
// video to its distribution target (YouTube in the reference
// deployment). It is an opaque RPC-style client: the pipeline only needs
// to know that Publish takes a video file and metadata and returns a
// platform video ID.
package publish
