// Package ocr provides the text recognition step of the capture pipeline.
//
// The Recognizer interface is the contract the review panel depends on:
// an encoded image goes in, trimmed text and a 0-100 confidence come out.
// A blank result is reported as a RECOGNITION_FAILURE so that empty text is
// never written to the store.
//
// # Tesseract
//
// Tesseract wraps the Tesseract engine via gosseract/v2. Each call:
//  1. Decodes the payload (PNG, JPEG, GIF or a base64 data URL)
//  2. Rejects near-uniform images without starting the engine
//  3. Crops to the text-like areas found by package detection
//  4. Upscales small captures with Lanczos resampling
//  5. Converts to grayscale and raises contrast (bild)
//  6. Runs Tesseract in single-uniform-block page segmentation
//  7. Averages the word-level confidences
//
// Tesseract and the language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Set TessdataPrefix (config tessdata_prefix) when the traineddata files
// live outside the default search path.
//
// # Timeouts
//
// Tesseract itself cannot be interrupted mid-pass. WithTimeout bounds the
// wait instead: when the deadline or the caller's context fires, the caller
// gets a RECOGNITION_FAILURE immediately and the engine result is dropped.
package ocr
