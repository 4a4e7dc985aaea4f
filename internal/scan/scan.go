// Package scan defines the domain model shared by the capture, analysis
// and persistence layers.
package scan

import "time"

// CaptureMode selects how the device produces a frame. Exactly one mode is
// active per device session; switching tears the session down and
// re-establishes it.
type CaptureMode string

const (
	// ModeStandard produces a planar photo.
	ModeStandard CaptureMode = "standard"
	// ModeVolumetric pairs a photo with a depth-sensor frame for
	// volume-assisted estimation.
	ModeVolumetric CaptureMode = "volumetric"
)

// Valid reports whether m names a known capture mode.
func (m CaptureMode) Valid() bool {
	return m == ModeStandard || m == ModeVolumetric
}

// State is the position of a capture session in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateFocusing  State = "focusing"
	StateCapturing State = "capturing"
	StateCaptured  State = "captured"
	StateAnalyzing State = "analyzing"
	StateResulted  State = "resulted"
	StateFailed    State = "failed"
)

// Live reports whether the state belongs to an in-flight cycle. A new
// capture may only begin from a non-live state that is Idle.
func (s State) Live() bool {
	switch s {
	case StateIdle, StateResulted, StateFailed:
		return false
	}
	return true
}

// DepthFrame is the opaque output of the volumetric sensor, carried
// alongside the photo it was captured with.
type DepthFrame struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

// FoodItem is one constituent of an analyzed plate.
type FoodItem struct {
	Name        string `json:"name" firestore:"name"`
	WeightGrams int    `json:"weight_grams" firestore:"weight_grams"`
}

// AnalysisResult is the validated output of one analysis call. Values are
// immutable once produced. TotalWeightGrams should equal the sum of the
// constituents but the source model is not held to that, so it is advisory.
type AnalysisResult struct {
	OverallFoodItem      string     `json:"overall_food_item"`
	ConstituentFoodItems []FoodItem `json:"constituent_food_items"`
	TotalWeightGrams     int        `json:"total_weight_grams"`
	ConfidencePercentage int        `json:"confidence_percentage"`
}

// ScanRecord is the persisted projection of an analysis result. One record
// is written to the global ledger and to the owning user's ledger as a
// single unit.
type ScanRecord struct {
	ID                   string     `json:"id" firestore:"id"`
	UserID               string     `json:"user_id" firestore:"user_id"`
	ImageRef             string     `json:"image_ref" firestore:"image_ref"`
	OverallFoodItem      string     `json:"overall_food_item" firestore:"overall_food_item"`
	ConstituentFoodItems []FoodItem `json:"constituent_food_items" firestore:"constituent_food_items"`
	TotalWeightGrams     int        `json:"total_weight_grams" firestore:"total_weight_grams"`
	ConfidencePercentage int        `json:"confidence_percentage" firestore:"confidence_percentage"`
	CreatedAt            time.Time  `json:"created_at" firestore:"created_at"`
}

// NewScanRecord builds the persisted projection of res for the given user
// and uploaded image reference.
func NewScanRecord(id, userID, imageRef string, res AnalysisResult, at time.Time) ScanRecord {
	items := make([]FoodItem, len(res.ConstituentFoodItems))
	copy(items, res.ConstituentFoodItems)
	return ScanRecord{
		ID:                   id,
		UserID:               userID,
		ImageRef:             imageRef,
		OverallFoodItem:      res.OverallFoodItem,
		ConstituentFoodItems: items,
		TotalWeightGrams:     res.TotalWeightGrams,
		ConfidencePercentage: res.ConfidencePercentage,
		CreatedAt:            at,
	}
}
