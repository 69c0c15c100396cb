package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dava-bot/internal/metrics"
)

// ErrStateConflict is returned by a ConversationStore when a save loses
// the optimistic version check. The engine retries the whole message
// once so rapid same-identity messages cannot drop an update.
var ErrStateConflict = errors.New("conversation state version conflict")

const (
	conversationLockTTL = 30 * time.Second
	defaultNLUTimeout   = 8 * time.Second
)

// MessageLogger records the inbound/outbound audit trail.
type MessageLogger interface {
	LogMessage(ctx context.Context, conversationID, direction, category, content string) error
}

// DistributedLocker serializes a conversation across instances. The
// returned release func must be safe to call even when acquisition
// degraded to a no-op.
type DistributedLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) func()
}

// Config carries the engine's tunable policy knobs. Thresholds are
// explicit constants here, not scattered literals.
type Config struct {
	BusinessID      string
	SellerName      string
	WalkInLabel     string
	OwnerID         string  // conversation identity notified of new drafts
	MinConfidence   float64 // product resolver acceptance threshold
	EntityThreshold float64 // entity authority threshold
	NLUTimeout      time.Duration
}

// Engine coordinates the conversational core: classification, product
// resolution, the per-conversation FSM and the decision engine. One
// message for one identity is processed at a time; distinct identities
// run fully in parallel.
type Engine struct {
	conversations ConversationStore
	drafts        DraftStore
	inventory     InventoryProvider
	fallback      FallbackClassifier
	messages      MessageLogger
	remote        DistributedLocker
	metrics       *metrics.Metrics
	logger        *slog.Logger

	classifier *Classifier
	resolver   *Resolver
	decision   *DecisionEngine
	cfg        Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a conversation engine. fallback, locker and messages may
// be nil; every deterministic path works without them.
func New(
	conversations ConversationStore,
	drafts DraftStore,
	inventory InventoryProvider,
	fallback FallbackClassifier,
	messages MessageLogger,
	locker DistributedLocker,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.NLUTimeout <= 0 {
		cfg.NLUTimeout = defaultNLUTimeout
	}
	if cfg.WalkInLabel == "" {
		cfg.WalkInLabel = "Walk-in Customer"
	}
	return &Engine{
		conversations: conversations,
		drafts:        drafts,
		inventory:     inventory,
		fallback:      fallback,
		messages:      messages,
		remote:        locker,
		metrics:       m,
		logger:        logger.With("component", "convo"),
		classifier:    NewClassifier(cfg.EntityThreshold, cfg.WalkInLabel),
		resolver:      NewResolver(cfg.MinConfidence),
		decision:      NewDecisionEngine(cfg.BusinessID, cfg.SellerName, cfg.WalkInLabel),
		cfg:           cfg,
		locks:         map[string]*sync.Mutex{},
	}
}

// HandleMessage processes one inbound message for a conversation
// identity and returns the response to send back. Messages for the same
// identity are serialized; a lost optimistic write retries once.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, text string) (Response, error) {
	unlock := e.lockConversation(ctx, conversationID)
	defer unlock()

	resp, err := e.process(ctx, conversationID, text)
	if errors.Is(err, ErrStateConflict) {
		resp, err = e.process(ctx, conversationID, text)
	}
	return resp, err
}

func (e *Engine) process(ctx context.Context, conversationID, text string) (Response, error) {
	state, err := e.conversations.GetState(ctx, conversationID)
	if err != nil {
		return Response{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if state == nil {
		state = NewState(conversationID)
	}
	prevMode := state.Mode

	intent := e.classifier.Classify(text, state.Mode, state.Context)
	source := "deterministic"
	var canned string
	if _, unknown := intent.(Unknown); unknown && e.fallback != nil {
		intent, canned = e.fallbackClassify(ctx, text, state)
		source = "fallback"
	}
	e.metrics.Intents.WithLabelValues(intent.Name(), source).Inc()
	e.logger.Debug("intent classified", "conversation", conversationID, "intent", intent.Name(), "source", source, "mode", state.Mode)

	resp, err := e.route(ctx, state, intent, text)
	if err != nil {
		return Response{}, err
	}
	if resp.Text == "" && canned != "" {
		resp.Text = canned
	}

	state.Touch(time.Now().UTC())
	if err := e.conversations.SaveState(ctx, state); err != nil {
		return Response{}, err
	}
	if prevMode != state.Mode {
		e.metrics.Transitions.WithLabelValues(string(prevMode), string(state.Mode)).Inc()
	}
	return resp, nil
}

// route is the FSM transition table: intent x mode -> next mode plus a
// response. Meta outranks query outranks transaction; the classifier
// already encodes that ordering, so each case only checks its own mode
// preconditions.
func (e *Engine) route(ctx context.Context, state *State, intent Intent, text string) (Response, error) {
	switch it := intent.(type) {
	case Cancel:
		state.ResetToIdle()
		return reply(cancelReply()), nil

	case Help:
		return reply(helpReply()), nil

	case Greet:
		return reply(greetReply()), nil

	case QueryStock:
		return e.handleProductQuery(ctx, state, it.Product, false)

	case QueryPrice:
		return e.handleProductQuery(ctx, state, it.Product, true)

	case QuerySymptom:
		return e.handleSymptomQuery(ctx, state, text)

	case StartOrder:
		return e.handleStartOrder(ctx, state, it)

	case ProvideQuantity:
		return e.handleProvideQuantity(state, it.Quantity), nil

	case ProvideCustomer:
		return e.handleProvideCustomer(state, it.Customer), nil

	case Confirm:
		return e.handleConfirm(ctx, state)

	default:
		// Unparseable chatter while a quantity is awaited re-prompts for
		// the quantity rather than losing the step to the generic help.
		if state.Mode == ModeStockConfirmed || state.Mode == ModeOrdering {
			if p := state.Context.Product; p != nil && state.Context.Quantity <= 0 {
				return clarify(reAskQuantityReply(p.Name)), nil
			}
		}
		return clarify(unknownReply()), nil
	}
}

// handleProductQuery covers stock and price checks. A query arriving in
// a locked mode clears the locked context first: interruption must never
// carry the old product into the next transaction.
func (e *Engine) handleProductQuery(ctx context.Context, state *State, mention StringEntity, priceFocused bool) (Response, error) {
	if state.Mode.Locked() {
		state.ResetLocks()
		state.Mode = ModeBrowsing
	}
	if mention.Empty() {
		return clarify(askProductReply()), nil
	}

	products, err := e.snapshot(ctx)
	if err != nil {
		return Response{}, err
	}

	match, err := e.resolver.Resolve(products, mention.Value)
	switch {
	case err == nil:
		if match.Product.Stock <= 0 {
			state.Mode = ModeBrowsing
			alternatives := MapSymptom(products, match.Product.Disease)
			return reply(outOfStockReply(match.Product, withoutProduct(alternatives, match.Product.ID))), nil
		}
		state.LockProduct(match)
		state.Mode = ModeStockConfirmed
		if priceFocused {
			return reply(priceReply(match.Product) + "\n\nOrder karna hai? Quantity batao"), nil
		}
		return reply(stockReply(match.Product)), nil

	case errors.Is(err, ErrAmbiguous):
		options := e.resolver.ResolveMultiple(products, mention.Value, 0.4, maxSymptomResults)
		return clarify(ambiguousReply(mention.Value, options)), nil

	default:
		// Not found: offer a symptom-based search before failing.
		if results := MapSymptom(products, mention.Value); len(results) > 0 {
			return reply(symptomReply(mention.Value, results)), nil
		}
		if options := e.resolver.ResolveMultiple(products, mention.Value, 0.4, maxSymptomResults); len(options) > 0 {
			return clarify(ambiguousReply(mention.Value, options)), nil
		}
		return reply(notFoundReply(mention.Value)), nil
	}
}

func (e *Engine) handleSymptomQuery(ctx context.Context, state *State, text string) (Response, error) {
	if state.Mode.Locked() {
		state.ResetLocks()
		state.Mode = ModeBrowsing
	}
	products, err := e.snapshot(ctx)
	if err != nil {
		return Response{}, err
	}
	return reply(symptomReply(Normalize(text), MapSymptom(products, text))), nil
}

// handleStartOrder opens an order. A direct "10 Dolo" with both entities
// resolved skips the stock-check step and lands in AwaitingCustomer.
func (e *Engine) handleStartOrder(ctx context.Context, state *State, it StartOrder) (Response, error) {
	if it.Product.Empty() {
		state.Mode = ModeOrdering
		return clarify(askProductReply()), nil
	}

	products, err := e.snapshot(ctx)
	if err != nil {
		return Response{}, err
	}

	match, err := e.resolver.Resolve(products, it.Product.Value)
	switch {
	case err == nil:

	case errors.Is(err, ErrAmbiguous):
		options := e.resolver.ResolveMultiple(products, it.Product.Value, 0.4, maxSymptomResults)
		return clarify(ambiguousReply(it.Product.Value, options)), nil

	default:
		state.ResetToIdle()
		if results := MapSymptom(products, it.Product.Value); len(results) > 0 {
			return reply(symptomReply(it.Product.Value, results)), nil
		}
		return reply(notFoundReply(it.Product.Value)), nil
	}

	if match.Product.Stock <= 0 {
		state.ResetLocks()
		state.Mode = ModeBrowsing
		alternatives := MapSymptom(products, match.Product.Disease)
		return reply(outOfStockReply(match.Product, withoutProduct(alternatives, match.Product.ID))), nil
	}

	state.LockProduct(match)

	if !it.Quantity.Empty() && it.Quantity.Confidence >= e.classifier.entityThreshold && it.Quantity.Value > 0 {
		if it.Quantity.Value > match.Product.Stock {
			state.Mode = ModeOrdering
			return clarify(fmt.Sprintf("%s ke sirf %.0f units stock mein hain. Kitni chahiye?", match.Product.Name, match.Product.Stock)), nil
		}
		state.LockQuantity(it.Quantity)
		state.Mode = ModeAwaitingCustomer
		return clarify(askCustomerReply()), nil
	}

	state.Mode = ModeOrdering
	return clarify(askQuantityReply(match.Product.Name)), nil
}

// handleProvideQuantity locks the quantity if it is authoritative;
// low-confidence or invalid input re-prompts without a mode change.
func (e *Engine) handleProvideQuantity(state *State, qty NumberEntity) Response {
	product := state.Context.Product
	name := "medicine"
	if product != nil {
		name = product.Name
	}

	if qty.Empty() || qty.Value <= 0 || qty.Confidence < e.classifier.entityThreshold {
		return clarify(reAskQuantityReply(name))
	}
	if product != nil && qty.Value > product.Stock {
		return clarify(fmt.Sprintf("%s ke sirf %.0f units stock mein hain. Kitni chahiye?", name, product.Stock))
	}

	state.LockQuantity(qty)
	if product == nil {
		state.Mode = ModeOrdering
		return clarify(askProductReply())
	}
	state.Mode = ModeAwaitingCustomer
	return clarify(askCustomerReply())
}

func (e *Engine) handleProvideCustomer(state *State, customer StringEntity) Response {
	if state.Mode != ModeAwaitingCustomer && state.Mode != ModeOrdering && state.Mode != ModeConfirming {
		return clarify(unknownReply())
	}
	if customer.Empty() || customer.Confidence < e.classifier.entityThreshold {
		return clarify(askCustomerReply())
	}
	state.LockCustomer(customer)
	if !state.ReadyToConfirm() {
		state.Mode = ModeOrdering
		return clarify(askProductReply())
	}
	state.Mode = ModeConfirming
	return reply(confirmationReply(e.decision.Seller, state.Context, customer.Value))
}

// handleConfirm advances AwaitingCustomer to Confirming with the walk-in
// default, and in Confirming invokes the decision engine.
func (e *Engine) handleConfirm(ctx context.Context, state *State) (Response, error) {
	switch state.Mode {
	case ModeAwaitingCustomer:
		if !state.ReadyToConfirm() {
			return e.invariantFailure(state, ErrMissingProduct), nil
		}
		state.Mode = ModeConfirming
		return reply(confirmationReply(e.decision.Seller, state.Context, e.cfg.WalkInLabel)), nil

	case ModeConfirming:
		if !state.ReadyToConfirm() {
			return e.invariantFailure(state, ErrMissingProduct), nil
		}
		draft, err := e.decision.CreateDraft(ctx, e.drafts, state.ConversationID, state.Context)
		switch {
		case err == nil:
			e.metrics.Drafts.WithLabelValues(string(StatusDraft)).Inc()
			state.ResetToIdle()
			return Response{
				Kind:    ResponseDraftCreated,
				Text:    draftCreatedReply(draft),
				DraftID: draft.ID,
				Summary: draft.SummaryLine(),
			}, nil
		case errors.Is(err, ErrMissingProduct), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrRoleCollision):
			return e.invariantFailure(state, err), nil
		default:
			return Response{}, err
		}

	default:
		return reply("Kya confirm karein? Koi order pending nahi hai."), nil
	}
}

// invariantFailure handles the programming-error class: log loudly,
// reset to Idle so the conversation cannot wedge, show a generic
// failure.
func (e *Engine) invariantFailure(state *State, err error) Response {
	e.logger.Error("draft invariant violation", "conversation", state.ConversationID, "error", err, "mode", state.Mode)
	e.metrics.Errors.WithLabelValues("invariant").Inc()
	state.ResetToIdle()
	return reply(internalErrorReply())
}

// fallbackClassify consults the external NLU collaborator with a hard
// timeout. On any failure the intent stays Unknown and the user gets a
// clarifying question. The fallback never produces quantity, role or
// billing decisions on its own authority.
func (e *Engine) fallbackClassify(ctx context.Context, text string, state *State) (Intent, string) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.NLUTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.fallback.Classify(callCtx, text, state)
	e.metrics.NLULatency.WithLabelValues(statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.NLURequests.WithLabelValues("error").Inc()
		e.logger.Warn("nlu fallback failed", "error", err)
		return Unknown{}, ""
	}
	e.metrics.NLURequests.WithLabelValues("success").Inc()

	conf := result.Confidence
	entity := func(key string) StringEntity {
		if v := result.Entities[key]; v != "" {
			return StringEntity{Value: v, Confidence: conf, Source: SourceFallback}
		}
		return StringEntity{}
	}

	switch result.Intent {
	case "cancel":
		return Cancel{}, ""
	case "help":
		return Help{}, result.Reply
	case "greet", "smalltalk":
		return Greet{}, result.Reply
	case "ask_stock":
		return QueryStock{Product: entity("product")}, ""
	case "ask_price":
		return QueryPrice{Product: entity("product")}, ""
	case "ask_symptom":
		return QuerySymptom{Symptom: entity("symptom")}, ""
	case "start_order":
		intent := StartOrder{Product: entity("product")}
		if raw := result.Entities["quantity"]; raw != "" {
			if v, perr := strconv.ParseFloat(raw, 64); perr == nil && v > 0 {
				// Advisory only: capped below the authority threshold so
				// the FSM re-asks instead of trusting the model.
				intent.Quantity = NumberEntity{Value: v, Confidence: 0.5, Source: SourceFallback}
			}
		}
		return intent, ""
	case "provide_customer":
		return ProvideCustomer{Customer: entity("customer")}, ""
	default:
		return Unknown{}, result.Reply
	}
}

func (e *Engine) snapshot(ctx context.Context) ([]Product, error) {
	products, err := e.inventory.ListProducts(ctx, e.cfg.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// lockConversation serializes processing per conversation identity: an
// in-process keyed mutex always, plus a redis lock when a cache is
// configured so multiple instances do not interleave.
func (e *Engine) lockConversation(ctx context.Context, conversationID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[conversationID] = lock
	}
	e.mu.Unlock()
	lock.Lock()

	release := func() {}
	if e.remote != nil {
		release = e.remote.AcquireLock(ctx, "lock:convo:"+conversationID, conversationLockTTL)
	}
	return func() {
		release()
		lock.Unlock()
	}
}

func withoutProduct(products []Product, id int64) []Product {
	out := products[:0:0]
	for _, p := range products {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
