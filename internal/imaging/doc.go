// Package imaging provides the raster helpers used by the capture chain.
//
// It covers three jobs:
//   - cropping a full-viewport frame down to a selection, compensating for
//     device pixel density (CropViewport)
//   - encoding and inspecting payloads (EncodePNG, Decode, Info, DataURL)
//   - drawing synthetic images for the reconstruction and placeholder tiers
//     (Card, Gradient, DrawText)
//
// # Coordinate System
//
// Selections arrive in CSS pixels with (0,0) at the top-left of the
// viewport. Frames arrive in device pixels. CropViewport scales all four
// crop coordinates by the device pixel ratio before sampling, so a 100x50
// selection on a 2x display yields a 200x100 crop.
//
// # Text Rendering
//
// Text uses golang.org/x/image/font/basicfont (7x13 glyphs, 16px line
// height). It is ASCII-oriented; other runes render as the face's
// fallback glyph. That is acceptable for annotations and for the DOM
// reconstruction, which exists to give OCR something legible rather than a
// faithful rendering.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package imaging
