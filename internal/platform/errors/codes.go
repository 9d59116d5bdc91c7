// Package errors provides structured error handling for sheetsync services.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Account link errors
	CodeAccountNotLinked          Code = "ACCOUNT_NOT_LINKED"
	CodeCredentialReEntryRequired Code = "CREDENTIAL_REENTRY_REQUIRED"
	CodeAuthenticationFailed      Code = "AUTHENTICATION_FAILED"

	// Decode errors
	CodeMalformedEncoding Code = "MALFORMED_ENCODING"
	CodeUndecodableRecord Code = "UNDECODABLE_RECORD"

	// Sync errors
	CodeRecordNotFound   Code = "RECORD_NOT_FOUND"
	CodeNameConflict     Code = "NAME_CONFLICT"
	CodeVaultUnavailable Code = "VAULT_UNAVAILABLE"
	CodeExportSlotsFull  Code = "EXPORT_SLOTS_FULL"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeMalformedEncoding,
		CodeUndecodableRecord:
		return codes.InvalidArgument

	case CodeAccountNotLinked,
		CodeCredentialReEntryRequired,
		CodeExportSlotsFull:
		return codes.FailedPrecondition

	case CodeAuthenticationFailed:
		return codes.Unauthenticated

	case CodeRecordNotFound,
		CodeNotFound:
		return codes.NotFound

	case CodeNameConflict:
		return codes.AlreadyExists

	case CodeVaultUnavailable:
		return codes.Unavailable

	case CodePersistenceFailure:
		return codes.Internal

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for the routing layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMalformedEncoding,
		CodeUndecodableRecord:
		return http.StatusBadRequest

	case CodeAccountNotLinked,
		CodeCredentialReEntryRequired,
		CodeExportSlotsFull:
		return http.StatusPreconditionFailed

	case CodeAuthenticationFailed:
		return http.StatusUnauthorized

	case CodeRecordNotFound,
		CodeNotFound:
		return http.StatusNotFound

	case CodeNameConflict:
		return http.StatusConflict

	case CodeVaultUnavailable:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
