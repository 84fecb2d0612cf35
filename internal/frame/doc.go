// Package frame owns the data model of the capture pipeline.
//
// Responsibilities: the four frame kinds a depth camera produces (raw,
// processed raw, depth, point cloud) and the small value types exchanged
// between the capture orchestrator and a device (frame size, frame rate,
// region of interest).
// Key types: RawFrame, DepthFrame, PointCloudFrame, FrameSize, FrameRate.
//
// Frames are plain buffers. Ownership (pool free list, pipeline stage or
// callback window) is tracked by bufferpool handles, not by this package.
package frame
