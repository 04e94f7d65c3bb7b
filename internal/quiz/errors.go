package quiz

import "errors"

// Sentinel errors. Callers classify with errors.Is; handlers map them to
// HTTP status codes.
var (
	// ErrInvalidRequest means the quiz request itself is malformed.
	ErrInvalidRequest = errors.New("invalid quiz request")

	// ErrUpstreamUnavailable means the generation model could not be
	// reached. Retryable.
	ErrUpstreamUnavailable = errors.New("generation upstream unavailable")

	// ErrNoContract means the model output contains no JSON array at all.
	ErrNoContract = errors.New("no JSON contract found in model output")

	// ErrContractViolated means the model output yielded zero usable
	// questions. Not retried; nothing is persisted.
	ErrContractViolated = errors.New("generation contract violated")

	// ErrReviewUnparsable means the review pass returned findings that
	// could not be decoded. Advisory only.
	ErrReviewUnparsable = errors.New("review findings unparsable")

	// ErrBudgetExhausted means the user's generation token budget is spent.
	ErrBudgetExhausted = errors.New("generation token budget exhausted")

	ErrQuizNotFound  = errors.New("quiz not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")

	ErrQuizFinalized = errors.New("quiz is finalized")
	ErrNotCreator    = errors.New("only the quiz creator may do this")
	ErrGroupEmpty    = errors.New("group has no members")
	ErrNotMember     = errors.New("user is not a member of the group")
	ErrAlreadyMember = errors.New("user is already a member of the group")
	ErrEmailTaken    = errors.New("email already registered")
)
