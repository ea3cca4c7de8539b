package shared

// Settings carries business configuration injected into services. Values are
// read once at startup; there is no ambient global state.
type Settings struct {
	// GapDeadlineDays is added to the receipt date to produce the customs
	// gap resolution deadline.
	GapDeadlineDays int
	// DefaultMarkup multiplies landed cost when no explicit markup is set.
	DefaultMarkup float64
	// ReminderOffsets are the days-before-due thresholds for payment
	// reminder emails, checked in order.
	ReminderOffsets []int
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		GapDeadlineDays: 30,
		DefaultMarkup:   1.0,
		ReminderOffsets: []int{7, 3, 1},
	}
}
