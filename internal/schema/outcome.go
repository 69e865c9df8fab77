package schema

import "time"

// DeliveryStatus is the terminal state of one destination within one delivery pass.
type DeliveryStatus string

const (
	DeliverySuccess          DeliveryStatus = "success"
	DeliveryRateLimited      DeliveryStatus = "rate_limited"
	DeliveryPermissionDenied DeliveryStatus = "permission_denied"
	DeliveryFailed           DeliveryStatus = "failed"
	// DeliverySkipped marks destinations never attempted because an earlier
	// destination hit a rate limit in the same pass.
	DeliverySkipped DeliveryStatus = "skipped"
)

// DeliveryOutcome records what happened to one destination.
type DeliveryOutcome struct {
	Destination ResolvedID
	Status      DeliveryStatus
	Wait        time.Duration // rate-limit wait announced by the platform
	Err         error
}
