// Package imaging turns photographed answer sheets into canonical binary
// rasters and renders those rasters back out for inspection.
//
// The grading pipeline only ever looks at a sheet through a *Raster: a
// bit-packed ink/background grid whose width is always ReferenceWidth.
// Normalize produces it from any decoded image.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Regions are given either
// as (x, y, width, height) or as corners (x1,y1)-(x2,y2) where (x1,y1) is
// inclusive and (x2,y2) exclusive.
//
// # Normalization
//
//  1. Grayscale conversion with BT.601 luma weights.
//  2. Rescale to ReferenceWidth pixels wide, preserving aspect ratio. The
//     canonical height is ScaledHeight of the original dimensions.
//  3. Binarize: a pixel is ink when its luminance is <= InkThreshold.
//
// Normalization of an image already ReferenceWidth wide performs no
// resampling, so synthetic sheets keep exact pixel counts.
//
// # Rendering
//
// Crop, Overlay and RenderRaster emit base64 PNGs for MCP clients;
// EncodePNG produces the raw bytes stored by the audit recorder.
//
// # Thread Safety
//
// Rasters are read-only once built and can be shared freely. ImageCache is
// safe for concurrent use. All other functions are stateless.
package imaging
