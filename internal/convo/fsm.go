package convo

import "time"

// State mutation helpers. Every transition in the engine goes through
// these so a locked product is only ever replaced by an explicit
// flow-resetting query or a cancellation.

// LockProduct fixes the canonical product in context and records its
// resolution confidence.
func (s *State) LockProduct(m *Match) {
	p := m.Product
	s.Context.Product = &p
	s.trace("product", m.Confidence, SourceExtraction)
}

// LockQuantity fixes the order quantity.
func (s *State) LockQuantity(q NumberEntity) {
	s.Context.Quantity = q.Value
	s.trace("quantity", q.Confidence, q.Source)
}

// LockCustomer fixes the buyer name.
func (s *State) LockCustomer(c StringEntity) {
	s.Context.Customer = c.Value
	s.trace("customer", c.Confidence, c.Source)
}

// ResetLocks clears the locked context without changing the mode.
// Called when a query interrupts a transaction so the old product can
// never contaminate the next one.
func (s *State) ResetLocks() {
	s.Context = LockedContext{}
	s.Trace = map[string]EntityTrace{}
}

// ResetToIdle clears everything and returns to Idle. Used on cancel,
// successful draft emission, and invariant-violation recovery.
func (s *State) ResetToIdle() {
	s.ResetLocks()
	s.Mode = ModeIdle
}

// Touch stamps the state before persisting.
func (s *State) Touch(now time.Time) {
	s.UpdatedAt = now
}

// ReadyToConfirm reports whether all required locked fields are present
// for the decision engine. Customer stays optional; the walk-in default
// is applied at confirmation time.
func (s *State) ReadyToConfirm() bool {
	return s.Context.Product != nil && s.Context.Product.ID > 0 && s.Context.Quantity > 0
}
