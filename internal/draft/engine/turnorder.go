package engine

// Snake turn-order math. Pure functions of the overall pick number and the
// seat count; round and position are 1-based throughout.

// RoundOf returns the round a given overall pick number falls in.
func RoundOf(overall, seatCount int) int {
	return (overall-1)/seatCount + 1
}

// PositionOf returns the position within the round for an overall pick number.
func PositionOf(overall, seatCount int) int {
	return (overall-1)%seatCount + 1
}

// SeatIndex returns the index into the draft order that acts at the given
// round and position. Odd rounds run forward, even rounds reverse.
func SeatIndex(round, position, seatCount int) int {
	if round%2 == 1 {
		return position - 1
	}
	return seatCount - position
}

// seatIndexForOverall collapses the two lookups for callers that only hold
// an overall pick number.
func seatIndexForOverall(overall, seatCount int) int {
	return SeatIndex(RoundOf(overall, seatCount), PositionOf(overall, seatCount), seatCount)
}
