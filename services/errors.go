// services/errors.go
package services

import "errors"

// Business-rule violations. These are fatal, typed errors — distinct from the
// non-error outcomes below — and are surfaced to the caller directly.
var (
	ErrMissingTenant    = errors.New("tenant id is required")
	ErrRewardNotFound   = errors.New("reward not found")
	ErrRewardNotEarned  = errors.New("reward is not in earned status")
	ErrCustomerMismatch = errors.New("customer does not match reward")
	ErrOfferNotFound    = errors.New("offer not found")
	ErrOfferInactive    = errors.New("offer is not active")
)

// Non-error outcome reasons for record operations. These describe events that
// were deliberately not processed and must not be logged as failures.
const (
	ReasonNotQualifying    = "variation_not_qualifying"
	ReasonAlreadyProcessed = "already_processed"
	ReasonNoCustomer       = "no_customer"
	ReasonLoyaltyDisabled  = "loyalty_disabled"
)
