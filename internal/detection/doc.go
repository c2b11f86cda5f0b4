// Package detection locates diagrams on rendered exam pages.
//
// A page is wrapped once in a Page, which derives the grayscale and blurred
// rasters every detector shares. Detectors are pure functions of the page and
// their parameters; they never modify the page and never keep state between
// calls.
//
// # Detectors
//
//   - ClassifyRegions: splits a page into text, diagram and mixed blocks from
//     the contours of its edge map, with a Hough-line fallback.
//   - DetectContourDensity: scores contours by local edge density.
//   - DetectGrid: coordinate planes, by ruling intersections first and by
//     Hough line families second.
//   - DetectMorphological and DetectBlobs: large dark structures and repeated
//     dot patterns.
//   - DetectLayout: coarse adaptive-threshold blocks, used as a later tier.
//
// Each detector returns DiagramCandidate values tagged with a Source. Resolve
// removes candidates that overlap a more confident one. Hybrid runs the first
// tier (contour density, grid, blob) and resolves the union.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - BBox holds the top-left pixel plus width and height
//
// # Confidence Scores
//
// Confidences are on a 0 to 100 scale. Each detector has its own formula;
// they are documented on the detector functions and are only comparable in
// the loose sense the overlap resolver needs.
//
// # Parameters
//
// Every threshold lives in Params. DefaultParams returns values tuned for
// 300 DPI pages; smaller renders need proportionally smaller areas.
package detection
