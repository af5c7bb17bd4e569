package services

// Error codes surfaced to clients alongside the message.
const (
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidAddress     = "invalid_address"
	CodeEmptyCart          = "empty_cart"
	CodeGatewayUnreachable = "gateway_unreachable"
	CodePersistenceFailed  = "persistence_failed"
	CodeConflict           = "conflict"
	CodeSignatureMismatch  = "signature_mismatch"
	CodeCouponInvalid      = "coupon_invalid"
	CodeCouponConflict     = "coupon_conflict"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal"
)

// ServiceError represents a typed error with an HTTP status code and a
// stable machine-readable code.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}
