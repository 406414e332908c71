// Package media is the driver port for video assembly: encoding a
// chapter's image and narration audio into a video segment and
// concatenating segments into the draft video, by shelling out to
// ffmpeg.
package media
