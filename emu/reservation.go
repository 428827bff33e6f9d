package emu

const reservationGranule = 8

// Reservation tracks the address reserved by a load-reserved instruction.
// A store-conditional succeeds only while the reservation is held.
type Reservation struct {
	addr  uint64
	valid bool
}

// Set reserves the granule containing addr.
func (r *Reservation) Set(addr uint64) {
	r.addr = addr &^ (reservationGranule - 1)
	r.valid = true
}

// Holds reports whether the granule containing addr is reserved.
func (r *Reservation) Holds(addr uint64) bool {
	return r.valid && r.addr == addr&^(reservationGranule-1)
}

// Clear drops the reservation.
func (r *Reservation) Clear() {
	r.valid = false
}

// Observe drops the reservation if a store of size bytes at addr touches
// the reserved granule.
func (r *Reservation) Observe(addr uint64, size int) {
	if !r.valid {
		return
	}

	g := Region{Base: r.addr, Size: reservationGranule}
	if g.Contains(addr, size) {
		r.valid = false
	}
}
