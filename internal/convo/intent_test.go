package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier() *Classifier {
	return NewClassifier(0.7, "Walk-in Customer")
}

func TestClassifyMetaLayerWinsEverywhere(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}, Quantity: 10}

	for _, mode := range []Mode{ModeIdle, ModeOrdering, ModeConfirming} {
		assert.IsType(t, Cancel{}, c.Classify("cancel karo", mode, lc), "mode %s", mode)
		assert.IsType(t, Cancel{}, c.Classify("rehne do", mode, lc), "mode %s", mode)
		assert.IsType(t, Help{}, c.Classify("help", mode, lc), "mode %s", mode)
		assert.IsType(t, Greet{}, c.Classify("namaste", mode, lc), "mode %s", mode)
	}
}

func TestClassifyNumericReplyWhileQuantityAwaited(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}}

	// Even with a trailing question mark, a bare number in a
	// locked-quantity mode is a quantity, never a stock lookup.
	intent := c.Classify("10?", ModeStockConfirmed, lc)
	pq, ok := intent.(ProvideQuantity)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, 10.0, pq.Quantity.Value)

	intent = c.Classify("15", ModeOrdering, lc)
	pq, ok = intent.(ProvideQuantity)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, 15.0, pq.Quantity.Value)
}

func TestClassifyDirectOrderBeatsBareQuantity(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}}

	// "5 Crocin" while ordering is a new direct order, not a quantity
	// for the locked product.
	intent := c.Classify("5 Crocin", ModeOrdering, lc)
	so, ok := intent.(StartOrder)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "Crocin", so.Product.Value)
	assert.Equal(t, 5.0, so.Quantity.Value)
}

func TestClassifyQueries(t *testing.T) {
	c := newTestClassifier()

	intent := c.Classify("Dolo 650 hai kya?", ModeIdle, LockedContext{})
	qs, ok := intent.(QueryStock)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "Dolo 650", qs.Product.Value)

	intent = c.Classify("crocin ka price kitna", ModeIdle, LockedContext{})
	qp, ok := intent.(QueryPrice)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "crocin", qp.Product.Value)

	intent = c.Classify("bukhar ki dawai batao", ModeIdle, LockedContext{})
	sym, ok := intent.(QuerySymptom)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "bukhar", sym.Symptom.Value)
}

func TestClassifyQueryInterruptsTransaction(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}, Quantity: 10}

	intent := c.Classify("Combiflam hai kya?", ModeAwaitingCustomer, lc)
	assert.IsType(t, QueryStock{}, intent)
}

func TestClassifyConfirmOnlyInConfirmingModes(t *testing.T) {
	c := newTestClassifier()

	assert.IsType(t, Confirm{}, c.Classify("haan", ModeConfirming, LockedContext{}))
	assert.IsType(t, Confirm{}, c.Classify("theek hai", ModeConfirming, LockedContext{}))
	assert.IsType(t, Confirm{}, c.Classify("confirm", ModeAwaitingCustomer, LockedContext{}))

	_, isConfirm := c.Classify("haan", ModeIdle, LockedContext{}).(Confirm)
	assert.False(t, isConfirm)
}

func TestClassifyNameContainingConfirmSubstringIsCustomer(t *testing.T) {
	c := newTestClassifier()

	// "Sharma" contains "ha"; it must still read as a buyer name.
	intent := c.Classify("Sharma ji ko", ModeAwaitingCustomer, LockedContext{})
	_, isConfirm := intent.(Confirm)
	assert.False(t, isConfirm)
}

func TestClassifyCustomerName(t *testing.T) {
	c := newTestClassifier()

	intent := c.Classify("Ramesh ko", ModeAwaitingCustomer, LockedContext{})
	pc, ok := intent.(ProvideCustomer)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "Ramesh", pc.Customer.Value)

	intent = c.Classify("mere liye", ModeAwaitingCustomer, LockedContext{})
	pc, ok = intent.(ProvideCustomer)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "Walk-in Customer", pc.Customer.Value)

	// A bare name in Idle means nothing.
	assert.IsType(t, Unknown{}, c.Classify("Ramesh", ModeIdle, LockedContext{}))
}

func TestClassifyWordQuantityInLockedModes(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}}

	intent := c.Classify("das", ModeOrdering, lc)
	pq, ok := intent.(ProvideQuantity)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, 10.0, pq.Quantity.Value)
	assert.Equal(t, SourceWord, pq.Quantity.Source)
}

func TestClassifyWordQuantityReplyWithQuestionMark(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Product: &Product{ID: 1, Name: "Dolo 650"}}

	// "das?" while a quantity is awaited is a quantity, never a stock
	// lookup that would wipe the locked product.
	intent := c.Classify("das?", ModeStockConfirmed, lc)
	pq, ok := intent.(ProvideQuantity)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, 10.0, pq.Quantity.Value)
	assert.Equal(t, SourceWord, pq.Quantity.Source)

	// A word number next to a product mention is still a query.
	intent = c.Classify("do crocin hai kya?", ModeStockConfirmed, lc)
	assert.IsType(t, QueryStock{}, intent)
}

func TestClassifyContextCarryOverStaysAdvisory(t *testing.T) {
	c := newTestClassifier()
	lc := LockedContext{Quantity: 10}

	// "wahi quantity" carries the previous quantity forward, but below
	// the authority threshold so the engine re-prompts instead of
	// locking it.
	intent := c.Classify("wahi quantity", ModeOrdering, lc)
	pq, ok := intent.(ProvideQuantity)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, 10.0, pq.Quantity.Value)
	assert.Equal(t, SourceContext, pq.Quantity.Source)
	assert.Less(t, pq.Quantity.Confidence, 0.7)
}

func TestClassifyOrderKeywords(t *testing.T) {
	c := newTestClassifier()

	intent := c.Classify("Combiflam chahiye", ModeIdle, LockedContext{})
	so, ok := intent.(StartOrder)
	require.True(t, ok, "got %T", intent)
	assert.Equal(t, "Combiflam", so.Product.Value)
	assert.True(t, so.Quantity.Empty())
}

func TestClassifyUnknown(t *testing.T) {
	c := newTestClassifier()

	assert.IsType(t, Unknown{}, c.Classify("", ModeIdle, LockedContext{}))
	assert.IsType(t, Unknown{}, c.Classify("asdf qwer zxcv poiu", ModeIdle, LockedContext{}))
}
