package facility

// Allowed status changes, keyed by target status. Anything not listed is
// rejected with ErrInvalidTransition or the more specific custody error.

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationUsed:      {ReservationActive},
	ReservationExpired:   {ReservationActive},
	ReservationCancelled: {ReservationActive},
}

var fineTransitions = map[FineStatus][]FineStatus{
	FinePaid:   {FinePending},
	FineWaived: {FinePending},
}

var lockerTransitions = map[LockerStatus][]LockerStatus{
	LockerOccupied:    {LockerAvailable},
	LockerAvailable:   {LockerOccupied, LockerMaintenance},
	LockerMaintenance: {LockerOccupied, LockerAvailable},
}

func ValidReservationTransition(from, to ReservationStatus) bool {
	return contains(reservationTransitions[to], from)
}

func ValidFineTransition(from, to FineStatus) bool {
	return contains(fineTransitions[to], from)
}

func ValidLockerTransition(from, to LockerStatus) bool {
	return contains(lockerTransitions[to], from)
}

func contains[T comparable](allowed []T, v T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
