// Package transcode provides the lossy re-encoders used by the compression
// stage: a stdlib JPEG/PNG image encoder, an ffmpeg H.264 video encoder and a
// Drapto AV1 video encoder, routed by file extension.
package transcode
