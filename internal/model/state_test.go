package model

import "testing"

func TestCanUnitTransition(t *testing.T) {
	if !CanUnitTransition(UnitStatusAvailable, UnitStatusReserved) {
		t.Fatalf("expected available -> reserved allowed")
	}
	if !CanUnitTransition(UnitStatusReserved, UnitStatusInUse) {
		t.Fatalf("expected reserved -> in_use allowed")
	}
	if !CanUnitTransition(UnitStatusReserved, UnitStatusAvailable) {
		t.Fatalf("expected reserved -> available allowed")
	}
	if !CanUnitTransition(UnitStatusInUse, UnitStatusAvailable) {
		t.Fatalf("expected in_use -> available allowed")
	}

	if CanUnitTransition(UnitStatusAvailable, UnitStatusInUse) {
		t.Fatalf("expected available -> in_use not allowed")
	}
	if CanUnitTransition(UnitStatusInUse, UnitStatusReserved) {
		t.Fatalf("expected in_use -> reserved not allowed")
	}
	if CanUnitTransition(UnitStatusMaintenance, UnitStatusAvailable) {
		t.Fatalf("expected maintenance to be outside the scheduling cycle")
	}
	if CanUnitTransition(UnitStatusReserved, UnitStatusMaintenance) {
		t.Fatalf("expected reserved -> maintenance not allowed")
	}
	if CanUnitTransition("UNKNOWN", UnitStatusAvailable) {
		t.Fatalf("expected unknown status to have no transitions")
	}
}

func TestCanReservationTransition(t *testing.T) {
	for _, to := range []string{ReservationStatusExpired, ReservationStatusUsed, ReservationStatusCanceled} {
		if !CanReservationTransition(ReservationStatusActive, to) {
			t.Fatalf("expected active -> %s allowed", to)
		}
	}

	terminals := []string{ReservationStatusExpired, ReservationStatusUsed, ReservationStatusCanceled}
	for _, from := range terminals {
		if CanReservationTransition(from, ReservationStatusActive) {
			t.Fatalf("expected terminal %s to allow no transitions", from)
		}
		for _, to := range terminals {
			if CanReservationTransition(from, to) {
				t.Fatalf("expected %s -> %s not allowed", from, to)
			}
		}
	}
}
