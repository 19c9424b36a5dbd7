package models

// SeatSelection is either BySeatIDs or ByQuantity
type SeatSelection interface {
	SeatCount() int
	isSeatSelection()
}

// BySeatIDs selects specific trip seats. LockID is set when the seats were
// previously held through a timed lock.
type BySeatIDs struct {
	SeatIDs []string
	LockID  string
}

// ByQuantity selects N unassigned seats, optionally restricted to one floor
type ByQuantity struct {
	Count int
	Floor *int
}

func (s BySeatIDs) SeatCount() int  { return len(s.SeatIDs) }
func (s ByQuantity) SeatCount() int { return s.Count }

func (BySeatIDs) isSeatSelection()  {}
func (ByQuantity) isSeatSelection() {}
