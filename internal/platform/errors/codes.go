// Package errors provides structured error handling with machine codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Binding errors
	CodeBindingMissingElementID Code = "BINDING_MISSING_ELEMENT_ID"
	CodeBindingUnknownTag       Code = "BINDING_UNKNOWN_TAG"
	CodeBindingDuplicate        Code = "BINDING_DUPLICATE"
	CodeBindingSessionClosed    Code = "BINDING_SESSION_CLOSED"

	// Room identity errors
	CodeRoomEmptyScope Code = "ROOM_EMPTY_SCOPE"

	// Broker errors
	CodeBrokerEmptyDomain       Code = "BROKER_EMPTY_DOMAIN"
	CodeBrokerEmptyRoomID       Code = "BROKER_EMPTY_ROOM_ID"
	CodeBrokerEmptyElementID    Code = "BROKER_EMPTY_ELEMENT_ID"
	CodeBrokerInvalidPermission Code = "BROKER_INVALID_PERMISSION"
	CodeBrokerInvalidScope      Code = "BROKER_INVALID_SCOPE"
	CodeBrokerMalformedRequest  Code = "BROKER_MALFORMED_REQUEST"

	// Session errors
	CodeSessionChallengeExpired  Code = "SESSION_CHALLENGE_EXPIRED"
	CodeSessionInvalidSignature  Code = "SESSION_INVALID_SIGNATURE"
	CodeSessionInvalidPublicKey  Code = "SESSION_INVALID_PUBLIC_KEY"
	CodeSessionLeaseExpired      Code = "SESSION_LEASE_EXPIRED"
	CodeSessionPermissionDenied  Code = "SESSION_PERMISSION_DENIED"
	CodeSessionMalformedEnvelope Code = "SESSION_MALFORMED_ENVELOPE"

	// Transport errors
	CodeTransportUnavailable Code = "TRANSPORT_UNAVAILABLE"
	CodeTransportTimeout     Code = "TRANSPORT_TIMEOUT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes at service boundaries.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, malformed input
	case CodeBindingMissingElementID,
		CodeBindingUnknownTag,
		CodeRoomEmptyScope,
		CodeBrokerEmptyDomain,
		CodeBrokerEmptyRoomID,
		CodeBrokerEmptyElementID,
		CodeBrokerInvalidPermission,
		CodeBrokerInvalidScope,
		CodeBrokerMalformedRequest,
		CodeSessionMalformedEnvelope:
		return http.StatusBadRequest

	// Unauthorized - identity proof failures
	case CodeSessionChallengeExpired,
		CodeSessionInvalidSignature,
		CodeSessionInvalidPublicKey,
		CodeSessionLeaseExpired:
		return http.StatusUnauthorized

	// Forbidden - authenticated but not permitted
	case CodeSessionPermissionDenied:
		return http.StatusForbidden

	// Conflict - duplicate active binding
	case CodeBindingDuplicate:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Unavailable - degraded dependencies
	case CodeTransportUnavailable,
		CodeTransportTimeout:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
