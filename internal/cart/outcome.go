package cart

import "net/url"

// Status is the coordinator's verdict on one mutation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusCapped Status = "capped"
	StatusFailed Status = "failed"
	StatusBusy   Status = "busy"
)

// Failure is the class a failed mutation is presented as.
type Failure string

const (
	FailureNone         Failure = ""
	FailureProductGone  Failure = "product_gone"
	FailureRequiresAuth Failure = "requires_auth"
	FailureGeneric      Failure = "generic"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type ActionKind string

const (
	ActionViewCart ActionKind = "view_cart"
	ActionSignIn   ActionKind = "sign_in"
)

// Action is the recovery or follow-up link offered with a notification.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target"`
}

// Notification is the dismissible message the storefront shows for an outcome.
// Key is a stable identifier for translated copy; Message is the English fallback
// or the backend's own text.
type Notification struct {
	Level   Level   `json:"level"`
	Key     string  `json:"key"`
	Message string  `json:"message"`
	Action  *Action `json:"action,omitempty"`
}

// Outcome is the pre-classified result of a cart mutation.
type Outcome struct {
	Status       Status        `json:"status"`
	Failure      Failure       `json:"failure,omitempty"`
	Reason       Reason        `json:"reason,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	// Snapshot is set when the coordinator refreshed the cart synchronously.
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Links holds the storefront paths used in notification actions.
type Links struct {
	Cart   string
	SignIn string
	// CallbackParam names the sign-in query parameter that carries the return path.
	CallbackParam string
}

// DefaultLinks matches the storefront's routes.
func DefaultLinks() Links {
	return Links{Cart: "/cart", SignIn: "/sign-in", CallbackParam: "callbackUrl"}
}

func (l Links) viewCart() *Action {
	return &Action{Kind: ActionViewCart, Target: l.Cart}
}

func (l Links) signIn(returnPath string) *Action {
	target := l.SignIn
	if returnPath != "" {
		target += "?" + url.Values{l.CallbackParam: {returnPath}}.Encode()
	}
	return &Action{Kind: ActionSignIn, Target: target}
}

func busyOutcome() Outcome {
	return Outcome{
		Status: StatusBusy,
		Notification: &Notification{
			Level:   LevelWarning,
			Key:     "cart.line_busy",
			Message: "This item is still being updated, please wait",
		},
	}
}

// failureOutcome classifies a gateway reason into the presentation classes.
// Timeouts and unknown errors share the generic class with their own wording.
func (l Links) failureOutcome(reason Reason, message, returnPath string) Outcome {
	out := Outcome{Status: StatusFailed, Reason: reason}
	switch reason {
	case ReasonUnauthorized:
		out.Failure = FailureRequiresAuth
		out.Notification = &Notification{
			Level:   LevelError,
			Key:     "cart.sign_in_required",
			Message: "Please sign in to update your cart",
			Action:  l.signIn(returnPath),
		}
	case ReasonNotFound:
		out.Failure = FailureProductGone
		out.Notification = &Notification{
			Level:   LevelError,
			Key:     "cart.product_unavailable",
			Message: fallback(message, "This product is no longer available"),
		}
	case ReasonTimeout:
		out.Failure = FailureGeneric
		out.Notification = &Notification{
			Level:   LevelError,
			Key:     "cart.timeout",
			Message: "The store took too long to respond, please try again",
		}
	default:
		out.Failure = FailureGeneric
		out.Notification = &Notification{
			Level:   LevelError,
			Key:     "cart.update_failed",
			Message: fallback(message, "Could not update your cart"),
		}
	}
	return out
}

func fallback(message, def string) string {
	if message == "" {
		return def
	}
	return message
}
