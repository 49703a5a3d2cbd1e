package domain

// AdjustmentType says which direction a supply adjustment moves.
type AdjustmentType string

const (
	AdjustmentNone AdjustmentType = "none"
	AdjustmentMint AdjustmentType = "mint"
	AdjustmentBurn AdjustmentType = "burn"
)

// SupplyAdjustment is the PID controller's proposal for one control cycle.
// Amount is always non-negative; Type carries the direction.
type SupplyAdjustment struct {
	Type   AdjustmentType
	Amount float64
	Output float64 // raw controller output before rate clamping
	Reason string
}
