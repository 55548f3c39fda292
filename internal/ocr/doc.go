// Package ocr reads the exam version printed on an answer sheet using the
// Tesseract OCR engine (via gosseract/v2).
//
// # Prerequisites
//
// Tesseract and its headers must be installed to build this package:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// # Identification Region
//
// The layout file names one rectangle in canonical (600px wide)
// coordinates where every sheet prints its version label, for example
// "VERSION 1". The Reader crops that rectangle from the normalized
// raster, enlarges it, and runs Tesseract in single-line mode. The
// recognized text is matched against the registered version names with
// MatchVersion, which ignores case and every character that is not a
// letter or digit.
//
// # Concurrency
//
// A Tesseract client is not safe for concurrent use, so ReadVersion
// creates one per call. A single Reader may be shared by many goroutines.
package ocr
