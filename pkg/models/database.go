package models

// DatabaseStats summarizes the contents of an analysis store.
type DatabaseStats struct {
	Analyses int64 // Number of stored analyses
	Segments int64 // Number of stored segments across all analyses
}
