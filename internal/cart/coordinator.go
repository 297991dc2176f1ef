package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// LineState is where one cart line is in its mutation lifecycle.
type LineState string

const (
	LineIdle         LineState = "idle"
	LineAdding       LineState = "adding"
	LineIncrementing LineState = "incrementing"
	LineDecrementing LineState = "decrementing"
	LineRemoving     LineState = "removing"
	LineFailed       LineState = "failed"
)

// Mutator is the gateway surface the coordinator drives.
type Mutator interface {
	AddLine(ctx context.Context, cred auth.Credential, productID string, qty int) MutationResult
	SetLineQuantity(ctx context.Context, cred auth.Credential, productID string, current, target int) MutationResult
	RemoveLine(ctx context.Context, cred auth.Credential, productID string) MutationResult
}

// SnapshotCache is the cache surface the coordinator reads and invalidates.
type SnapshotCache interface {
	Get(ctx context.Context, cred auth.Credential) (Snapshot, error)
	Invalidate(cred auth.Credential)
	Refresh(ctx context.Context, cred auth.Credential) (Snapshot, error)
}

// Request identifies the line being mutated. ReturnPath is the storefront page the
// shopper is on, used as the sign-in callback.
type Request struct {
	Credential auth.Credential
	ProductID  string
	Quantity   int
	ReturnPath string
}

// Coordinator serialises mutations per cart line and classifies their outcomes.
// A mutation on a line that already has one in flight is refused as busy without
// reaching the backend. Different lines never wait on each other. Nothing is retried.
type Coordinator struct {
	gateway Mutator
	cache   SnapshotCache
	links   Links
	logg    *logger.Logger
	now     func() time.Time

	mu    sync.Mutex
	lines map[string]*lineSlot
}

type lineSlot struct {
	busy      bool
	state     LineState
	changedAt time.Time
}

// NewCoordinator wires the coordinator over the gateway and the shared cache.
func NewCoordinator(gateway Mutator, cache SnapshotCache, links Links, logg *logger.Logger) (*Coordinator, error) {
	if gateway == nil {
		return nil, errors.New("cart gateway required")
	}
	if cache == nil {
		return nil, errors.New("cart cache required")
	}
	return &Coordinator{
		gateway: gateway,
		cache:   cache,
		links:   links,
		logg:    logg,
		now:     time.Now,
		lines:   map[string]*lineSlot{},
	}, nil
}

// Add puts Quantity units (at least one) of the product in the cart.
func (c *Coordinator) Add(ctx context.Context, req Request) Outcome {
	release, ok := c.acquire(req, LineAdding)
	if !ok {
		return busyOutcome()
	}

	res := c.gateway.AddLine(ctx, req.Credential, req.ProductID, req.Quantity)
	if !res.OK {
		out := c.links.failureOutcome(res.Reason, res.Message, req.ReturnPath)
		if res.Reason == ReasonStockExceeded {
			c.cache.Invalidate(req.Credential)
			out.Notification.Key = "cart.stock_exceeded"
			out.Notification.Message = fallback(res.Message, "Not enough stock for this product")
			out.Notification.Action = c.links.viewCart()
		}
		c.logFailure(ctx, req, "add", res)
		release(LineFailed)
		return out
	}

	c.cache.Invalidate(req.Credential)
	release(LineIdle)
	return Outcome{
		Status: StatusOK,
		Notification: &Notification{
			Level:   LevelSuccess,
			Key:     "cart.added",
			Message: "Added to cart",
			Action:  c.links.viewCart(),
		},
	}
}

// Increment raises the line by one. A stock refusal is reported as capped: the cart is
// refreshed before returning because the backend may have clamped the line.
func (c *Coordinator) Increment(ctx context.Context, req Request) Outcome {
	release, ok := c.acquire(req, LineIncrementing)
	if !ok {
		return busyOutcome()
	}

	current, out, ok := c.currentQuantity(ctx, req)
	if !ok {
		release(LineFailed)
		return out
	}

	res := c.gateway.SetLineQuantity(ctx, req.Credential, req.ProductID, current, current+1)
	switch {
	case res.OK:
		c.cache.Invalidate(req.Credential)
		release(LineIdle)
		return Outcome{Status: StatusOK}
	case res.Reason == ReasonStockExceeded:
		capped := Outcome{
			Status: StatusCapped,
			Reason: ReasonStockExceeded,
			Notification: &Notification{
				Level:   LevelWarning,
				Key:     "cart.stock_limit",
				Message: fallback(res.Message, "You have reached the available stock for this product"),
				Action:  c.links.viewCart(),
			},
		}
		if snapshot, err := c.cache.Refresh(ctx, req.Credential); err == nil {
			capped.Snapshot = &snapshot
		} else {
			c.cache.Invalidate(req.Credential)
		}
		release(LineIdle)
		return capped
	}

	c.logFailure(ctx, req, "increment", res)
	c.invalidateAfterFailure(req.Credential, res.Reason)
	release(LineFailed)
	return c.links.failureOutcome(res.Reason, res.Message, req.ReturnPath)
}

// Decrement lowers the line by one. At quantity one the line is deleted instead of being
// set to zero.
func (c *Coordinator) Decrement(ctx context.Context, req Request) Outcome {
	release, ok := c.acquire(req, LineDecrementing)
	if !ok {
		return busyOutcome()
	}

	current, out, ok := c.currentQuantity(ctx, req)
	if !ok {
		release(LineFailed)
		return out
	}

	var res MutationResult
	if current-1 >= 1 {
		res = c.gateway.SetLineQuantity(ctx, req.Credential, req.ProductID, current, current-1)
	} else {
		res = c.gateway.RemoveLine(ctx, req.Credential, req.ProductID)
	}
	if res.OK {
		c.cache.Invalidate(req.Credential)
		release(LineIdle)
		return Outcome{Status: StatusOK}
	}

	c.logFailure(ctx, req, "decrement", res)
	c.invalidateAfterFailure(req.Credential, res.Reason)
	release(LineFailed)
	return c.links.failureOutcome(res.Reason, res.Message, req.ReturnPath)
}

// Remove deletes the line. A line the backend no longer has counts as removed.
func (c *Coordinator) Remove(ctx context.Context, req Request) Outcome {
	release, ok := c.acquire(req, LineRemoving)
	if !ok {
		return busyOutcome()
	}

	res := c.gateway.RemoveLine(ctx, req.Credential, req.ProductID)
	if res.OK || res.Reason == ReasonNotFound {
		c.cache.Invalidate(req.Credential)
		release(LineIdle)
		return Outcome{Status: StatusOK}
	}

	c.logFailure(ctx, req, "remove", res)
	release(LineFailed)
	return c.links.failureOutcome(res.Reason, res.Message, req.ReturnPath)
}

// LineState reports the line's current state. Lines never mutated are idle.
func (c *Coordinator) LineState(cred auth.Credential, productID string) LineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.lines[lineKey(cred, productID)]
	if !ok {
		return LineIdle
	}
	return slot.state
}

// Sweep forgets failed lines untouched for idle and returns how many were dropped.
func (c *Coordinator) Sweep(idle time.Duration) int {
	cutoff := c.now().Add(-idle)
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, slot := range c.lines {
		if slot.busy || slot.changedAt.After(cutoff) {
			continue
		}
		delete(c.lines, key)
		dropped++
	}
	return dropped
}

func lineKey(cred auth.Credential, productID string) string {
	return cred.Scope() + "|" + productID
}

// acquire claims the line for one mutation. The returned release records the final state;
// idle lines are dropped from the table.
func (c *Coordinator) acquire(req Request, state LineState) (func(LineState), bool) {
	key := lineKey(req.Credential, strings.TrimSpace(req.ProductID))
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.lines[key]
	if ok && slot.busy {
		return nil, false
	}
	if !ok {
		slot = &lineSlot{}
		c.lines[key] = slot
	}
	slot.busy = true
	slot.state = state
	slot.changedAt = c.now()

	return func(final LineState) {
		c.mu.Lock()
		defer c.mu.Unlock()
		slot.busy = false
		slot.state = final
		slot.changedAt = c.now()
		if final == LineIdle && c.lines[key] == slot {
			delete(c.lines, key)
		}
	}, true
}

// currentQuantity reads the line's quantity from the cached snapshot.
func (c *Coordinator) currentQuantity(ctx context.Context, req Request) (int, Outcome, bool) {
	if req.Credential.KnownInvalid(c.now()) {
		return 0, c.links.failureOutcome(ReasonUnauthorized, "", req.ReturnPath), false
	}
	snapshot, err := c.cache.Get(ctx, req.Credential)
	if err != nil {
		reason := ReasonUnknown
		switch {
		case pkgerrors.Is(err, pkgerrors.CodeUnauthorized):
			reason = ReasonUnauthorized
		case pkgerrors.Is(err, pkgerrors.CodeTimeout), errors.Is(err, context.DeadlineExceeded):
			reason = ReasonTimeout
		}
		return 0, c.links.failureOutcome(reason, "", req.ReturnPath), false
	}
	quantity := snapshot.Quantity(req.ProductID)
	if quantity < 1 {
		c.cache.Invalidate(req.Credential)
		return 0, c.links.failureOutcome(ReasonNotFound, "This product is no longer in your cart", req.ReturnPath), false
	}
	return quantity, Outcome{}, true
}

// invalidateAfterFailure refetches when the failure means the cached line is wrong.
func (c *Coordinator) invalidateAfterFailure(cred auth.Credential, reason Reason) {
	if reason == ReasonNotFound {
		c.cache.Invalidate(cred)
	}
}

func (c *Coordinator) logFailure(ctx context.Context, req Request, op string, res MutationResult) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"product_id": req.ProductID,
		"operation":  op,
		"reason":     string(res.Reason),
	})
	c.logg.Warn(ctx, "cart mutation failed")
}
