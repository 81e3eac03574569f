package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("resolve: %w", New(CodeOutputNotFound, "output OnTrigger missing"))
	if !stderrors.Is(err, New(CodeOutputNotFound, "")) {
		t.Fatal("expected code match through wrap chain")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(Wrap(CodeAllocationExhausted, "pool", nil)); got != CodeAllocationExhausted {
		t.Fatalf("expected allocation exhausted, got %s", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := map[Code]codes.Code{
		CodeNotFound:             codes.NotFound,
		CodeEntityNotFound:       codes.NotFound,
		CodeOutputNotFound:       codes.NotFound,
		CodeInvalidArgument:      codes.InvalidArgument,
		CodeEventActionMalformed: codes.InvalidArgument,
		CodeAllocationExhausted:  codes.ResourceExhausted,
		CodeUnknown:              codes.Internal,
	}
	for code, want := range tests {
		if got := code.GRPCCode(); got != want {
			t.Fatalf("%s: expected %s, got %s", code, want, got)
		}
	}
}

func TestGRPCStatusRoundTrip(t *testing.T) {
	original := WithMetadata(CodeOutputNotFound, "output missing", map[string]string{"Output": "OnTrigger"})
	statusErr := original.ToGRPCStatus("en-US", "Entity 1 has no output named OnTrigger.")

	if status.Code(statusErr) != codes.NotFound {
		t.Fatalf("expected NotFound status, got %s", status.Code(statusErr))
	}

	recovered := FromGRPCStatus(statusErr)
	if recovered.Code != CodeOutputNotFound {
		t.Fatalf("expected recovered code %s, got %s", CodeOutputNotFound, recovered.Code)
	}
	if recovered.Metadata["Output"] != "OnTrigger" {
		t.Fatalf("expected metadata to survive, got %v", recovered.Metadata)
	}
}

func TestFromGRPCStatusWithoutDetails(t *testing.T) {
	recovered := FromGRPCStatus(status.Error(codes.Unavailable, "down"))
	if recovered.Code != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", recovered.Code)
	}
	if FromGRPCStatus(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestHandleErrorLocalizesDomainErrors(t *testing.T) {
	err := WithMetadata(CodeEntityNotFound, "invalid entity index 7", map[string]string{"Entity": "7"})

	st, ok := status.FromError(HandleError(err, "pt-BR"))
	if !ok {
		t.Fatal("expected status error")
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", st.Code())
	}
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		if msg, ok := detail.(*errdetails.LocalizedMessage); ok {
			localized = msg
		}
	}
	if localized == nil || localized.GetLocale() != "pt-BR" {
		t.Fatalf("expected pt-BR localized message, got %v", localized)
	}
	if !strings.Contains(localized.GetMessage(), "7") {
		t.Fatalf("expected entity index in message, got %q", localized.GetMessage())
	}
}

func TestHandleErrorPassesStatusAndWrapsOthers(t *testing.T) {
	if HandleError(nil, DefaultLocale) != nil {
		t.Fatal("expected nil for nil error")
	}
	original := status.Error(codes.Unavailable, "down")
	if got := HandleError(original, DefaultLocale); status.Code(got) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", status.Code(got))
	}
	if got := HandleError(stderrors.New("boom"), DefaultLocale); status.Code(got) != codes.Internal {
		t.Fatalf("expected Internal, got %v", status.Code(got))
	}
}
