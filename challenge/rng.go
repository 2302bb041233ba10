package challenge

// Rng is a 32-bit counter-based generator (the mulberry32 family).
//
// The output stream is part of the daily challenge contract: every client
// seeded with the same value must see the same floats in the same order, so
// the bit operations below must never change.
type Rng struct {
	state uint32
}

func NewRng(seed uint32) *Rng {
	return &Rng{state: seed}
}

// Uint32 advances the state and returns the next mixed 32-bit word.
func (r *Rng) Uint32() uint32 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Next returns the next float in [0,1).
func (r *Rng) Next() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// Intn returns floor(Next()*n). It consumes exactly one step.
func (r *Rng) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Next() * float64(n))
}
