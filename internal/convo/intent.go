package convo

import "strings"

// Intent is the sealed set of things a message can mean. Each variant
// carries only the fields valid for it.
type Intent interface {
	Name() string
	isIntent()
}

// Meta intents.
type (
	// Cancel aborts whatever is in progress.
	Cancel struct{}
	// Help asks what the bot can do.
	Help struct{}
	// Greet is a bare greeting.
	Greet struct{}
)

// Query intents. Queries are non-destructive and always outrank
// transactions: an in-progress order must never swallow one.
type (
	// QueryStock asks whether a product is available.
	QueryStock struct{ Product StringEntity }
	// QuerySymptom asks for medicines matching a symptom.
	QuerySymptom struct{ Symptom StringEntity }
	// QueryPrice asks what a product costs.
	QueryPrice struct{ Product StringEntity }
)

// Transaction intents.
type (
	// StartOrder opens or restarts an order. Quantity may be empty.
	StartOrder struct {
		Product  StringEntity
		Quantity NumberEntity
	}
	// ProvideQuantity supplies the quantity for the locked product.
	ProvideQuantity struct{ Quantity NumberEntity }
	// ProvideCustomer supplies the buyer name.
	ProvideCustomer struct{ Customer StringEntity }
	// Confirm approves the pending step.
	Confirm struct{}
)

// Unknown is the fallback when no deterministic rule matched.
type Unknown struct{}

func (Cancel) isIntent()          {}
func (Help) isIntent()            {}
func (Greet) isIntent()           {}
func (QueryStock) isIntent()      {}
func (QuerySymptom) isIntent()    {}
func (QueryPrice) isIntent()      {}
func (StartOrder) isIntent()      {}
func (ProvideQuantity) isIntent() {}
func (ProvideCustomer) isIntent() {}
func (Confirm) isIntent()         {}
func (Unknown) isIntent()         {}

func (Cancel) Name() string          { return "cancel" }
func (Help) Name() string            { return "help" }
func (Greet) Name() string           { return "greet" }
func (QueryStock) Name() string      { return "query_stock" }
func (QuerySymptom) Name() string    { return "query_symptom" }
func (QueryPrice) Name() string      { return "query_price" }
func (StartOrder) Name() string      { return "start_order" }
func (ProvideQuantity) Name() string { return "provide_quantity" }
func (ProvideCustomer) Name() string { return "provide_customer" }
func (Confirm) Name() string         { return "confirm" }
func (Unknown) Name() string         { return "unknown" }

// Keyword tables. Priority order is meta > query > transaction; the
// classifier walks the layers in that order and the first hit wins.
var (
	cancelKeywords  = []string{"cancel", "stop", "band karo", "mat karo", "rehne do", "nahi chahiye"}
	helpKeywords    = []string{"help", "kya kar sakte", "batao kaise", "kaise kare"}
	greetKeywords   = []string{"namaste", "hello", "hii", "good morning"}
	stockKeywords   = []string{"hai kya", "available", "stock", "milega", "check"}
	priceKeywords   = []string{"kitne ka", "price", "cost", "kya rate", "kitna"}
	orderKeywords   = []string{"chahiye", "order", "bill", "lena hai", "de do", "dedo"}
	confirmKeywords = []string{"confirm", "yes", "haan", "ha", "theek hai", "thik hai", "sahi hai", "ok", "done"}
)

// Classifier turns one message plus the current FSM mode and locked
// context into an Intent. Deterministic; the NLU fallback decision is
// taken one level up, only when this returns Unknown.
type Classifier struct {
	entityThreshold float64
	selfLabel       string
}

// NewClassifier creates a classifier. selfLabel is the customer value
// substituted for self-references like "mere liye".
func NewClassifier(entityThreshold float64, selfLabel string) *Classifier {
	if entityThreshold <= 0 {
		entityThreshold = 0.7
	}
	if selfLabel == "" {
		selfLabel = "Walk-in Customer"
	}
	return &Classifier{entityThreshold: entityThreshold, selfLabel: selfLabel}
}

// Classify applies the layered rules. Quantity extraction in Ordering and
// StockConfirmed runs before anything that could read the text as a
// product name, so numeric-only replies are never misread.
func (c *Classifier) Classify(text string, mode Mode, lc LockedContext) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Unknown{}
	}

	// Layer 1: meta.
	if containsAny(lower, cancelKeywords) || lower == "nahi" {
		return Cancel{}
	}
	if containsAny(lower, helpKeywords) {
		return Help{}
	}
	if containsAny(lower, greetKeywords) || lower == "hi" || lower == "hey" {
		return Greet{}
	}

	// Quantity replies while a quantity is awaited must resolve before
	// the query layer: "10?" or "das?" in StockConfirmed is a quantity,
	// not a lookup. Word quantities qualify only when nothing but the
	// number and chatter is present, so "do crocin hai?" stays a query.
	if mode == ModeOrdering || mode == ModeStockConfirmed {
		if qty := ExtractQuantity(text, mode, lc.Quantity); !qty.Empty() {
			switch qty.Source {
			case SourceNumeric:
				if _, hasProduct := splitDirectOrder(text); !hasProduct {
					return ProvideQuantity{Quantity: qty}
				}
			case SourceWord:
				if bareQuantity(lower) {
					return ProvideQuantity{Quantity: qty}
				}
			}
		}
	}

	// Layer 2: queries.
	if sym := ExtractSymptom(lower); !sym.Empty() {
		return QuerySymptom{Symptom: sym}
	}
	if containsAny(lower, stockKeywords) || strings.HasSuffix(strings.TrimSpace(text), "?") {
		return QueryStock{Product: ExtractProductMention(text)}
	}
	if containsAny(lower, priceKeywords) {
		return QueryPrice{Product: ExtractProductMention(text)}
	}

	// Layer 3: transactions.
	// Word-boundary matched: "ha" must not fire inside "Sharma".
	if mode == ModeConfirming || mode == ModeAwaitingCustomer {
		if containsAnyWord(lower, confirmKeywords) {
			return Confirm{}
		}
	}

	// Word quantities mixed with other text, plus the carry-over of a
	// previously locked quantity. Carry-over confidence sits below the
	// authority threshold, so the engine re-prompts instead of locking.
	if mode == ModeOrdering || mode == ModeStockConfirmed {
		if qty := ExtractQuantity(text, mode, lc.Quantity); !qty.Empty() && qty.Source != SourceNumeric {
			return ProvideQuantity{Quantity: qty}
		}
	}

	if product, qty := ExtractProductAndQuantity(text); !product.Empty() && !qty.Empty() {
		return StartOrder{Product: product, Quantity: qty}
	}

	if mode == ModeAwaitingCustomer || (mode == ModeOrdering && lc.Product != nil && lc.Quantity > 0) {
		if customer := ExtractCustomerName(text, c.selfLabel); !customer.Empty() {
			return ProvideCustomer{Customer: customer}
		}
	}

	if containsAny(lower, orderKeywords) {
		return StartOrder{Product: ExtractProductMention(text)}
	}

	return Unknown{}
}

// bareQuantity reports whether text carries nothing beyond a number
// word and order/query chatter.
func bareQuantity(lower string) bool {
	for _, tok := range strings.Fields(NormalizeMention(lower)) {
		if _, ok := numberWords[tok]; !ok {
			return false
		}
	}
	return true
}

// splitDirectOrder reports whether text is a "<qty> <product>" pattern.
func splitDirectOrder(text string) (StringEntity, bool) {
	product, qty := ExtractProductAndQuantity(text)
	return product, !product.Empty() && !qty.Empty()
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func containsAnyWord(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsWord(text, kw) {
			return true
		}
	}
	return false
}
