// Package saga holds the shared vocabulary of the offering publication saga:
// the process definition key, external-task topics, variable names, and the
// business error codes its handlers raise.
package saga

// ProcessKey is the publication process definition key in the engine.
const ProcessKey = "publish-offering"

// External-task topics, forward path then compensations.
const (
	TopicLockPrices             = "lock-prices"
	TopicValidateSpecifications = "validate-specifications"
	TopicCreateStoreEntry       = "create-store-entry"
	TopicConfirmPublication     = "confirm-publication"

	TopicUnlockPrices          = "unlock-prices"
	TopicRevertOfferingToDraft = "revert-offering-to-draft"
	TopicDeleteStoreEntry      = "delete-store-entry"
)

// Process variable names.
const (
	VarOfferingID       = "offeringId"
	VarPricingIDs       = "pricingIds"
	VarSpecificationIDs = "specificationIds"
)

// Business error codes routed to saga error boundaries.
const (
	ErrLockPricesFailed    = "LOCK_PRICES_FAILED"
	ErrValidateSpecsFailed = "VALIDATE_SPECS_FAILED"
)
