// Package detection finds where text sits in a captured region.
//
// OCR runs on whatever the user selected, which often includes wide
// margins, empty panels or nothing legible at all. This package gives the
// recognizer two cheap answers before it spends seconds in Tesseract:
//   - Blank: the image has almost no edges, so there is nothing to read
//   - TextBounds: the smallest padded rectangle holding the text-like areas
//
// # Algorithm
//
// Edges are marked where the grayscale gradient to the right or below
// exceeds a fixed threshold (BT.601 luma, threshold 30). Text candidates
// come from sliding windows of several sizes: a window qualifies when its
// edge density lies between 5% and 40% and its edge runs are mostly
// horizontal. Overlapping candidates are merged.
//
// The heuristic is tuned for rendered UI text (dark on light or light on
// dark). It does not try to find rotated or handwritten text.
//
// # Coordinates
//
// All rectangles are in the input image's coordinate space, so they can be
// passed directly to a crop.
package detection
