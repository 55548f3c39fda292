// Package omr reads marked answers off a normalized answer sheet and
// scores them.
//
// The pipeline for one sheet is
//
//	image -> imaging.Normalize -> Detector.Detect (per subject) -> Score -> ExamResult
//
// and Grader runs it end to end against a layout.Registry.
package omr
