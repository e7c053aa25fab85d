// Package drapto wraps the Drapto Go library so the compression stage can
// re-encode videos to AV1 and observe progress without shelling out.
package drapto
