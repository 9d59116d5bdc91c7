package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeNameConflict, "character name already taken")
	if !stderrors.Is(err, New(CodeNameConflict, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodeNotFound, "character name already taken")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodePersistenceFailure, "put character", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestCodeOf(t *testing.T) {
	err := New(CodeAccountNotLinked, "no vault account connected")
	if got := CodeOf(err); got != CodeAccountNotLinked {
		t.Fatalf("CodeOf = %q, want %q", got, CodeAccountNotLinked)
	}
	wrapped := fmt.Errorf("import: %w", err)
	if got := CodeOf(wrapped); got != CodeAccountNotLinked {
		t.Fatalf("CodeOf wrapped = %q, want %q", got, CodeAccountNotLinked)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf plain = %q, want %q", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("CodeOf nil = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeMalformedEncoding, codes.InvalidArgument},
		{CodeUndecodableRecord, codes.InvalidArgument},
		{CodeAccountNotLinked, codes.FailedPrecondition},
		{CodeCredentialReEntryRequired, codes.FailedPrecondition},
		{CodeAuthenticationFailed, codes.Unauthenticated},
		{CodeRecordNotFound, codes.NotFound},
		{CodeNameConflict, codes.AlreadyExists},
		{CodeVaultUnavailable, codes.Unavailable},
		{CodePersistenceFailure, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("GRPCCode(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeNameConflict, http.StatusConflict},
		{CodeAccountNotLinked, http.StatusPreconditionFailed},
		{CodeAuthenticationFailed, http.StatusUnauthorized},
		{CodeRecordNotFound, http.StatusNotFound},
		{CodeVaultUnavailable, http.StatusBadGateway},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeNameConflict, "name already in use", map[string]string{
		"existing_id": "abc123",
	})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.AlreadyExists {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.AlreadyExists)
	}
	if st.Message() != "name already in use" {
		t.Fatalf("status message = %q", st.Message())
	}
	if len(st.Details()) != 1 {
		t.Fatalf("details len = %d, want 1", len(st.Details()))
	}
}
