package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestReasonAndHelpers(t *testing.T) {
	err := New(CodeConflict, "not enough stock").WithReason("INSUFFICIENT_STOCK")
	wrapped := fmt.Errorf("reserve: %w", err)

	if !IsCode(wrapped, CodeConflict) {
		t.Fatalf("expected IsCode to find conflict through wrapping")
	}
	if !IsReason(wrapped, "INSUFFICIENT_STOCK") {
		t.Fatalf("expected reason to survive wrapping")
	}
	if IsRetryable(wrapped) {
		t.Fatalf("conflict must not be retryable")
	}
	if !IsRetryable(stdErrors.New("driver: bad connection")) {
		t.Fatalf("untyped errors should be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if got := err.Error(); got != "CONFLICT(INSUFFICIENT_STOCK): not enough stock" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil, got %s", got)
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected untyped errors to map to internal, got %s", got)
	}
	wrapped := fmt.Errorf("load: %w", Newf(CodeNotFound, "order %d missing", 7))
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("expected not found, got %s", got)
	}
	if got := As(wrapped).Message(); got != "order 7 missing" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestDumpCollectsChainAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key", ConstraintName: "payments_session_id_key", TableName: "payments"}
	err := fmt.Errorf("insert payment: %w", Wrap(CodeConflict, pgErr, "payment exists").WithReason("DUPLICATE_SESSION"))

	d := Dump(err)
	if d.Code != CodeConflict || d.Reason != "DUPLICATE_SESSION" {
		t.Fatalf("unexpected code/reason %s/%s", d.Code, d.Reason)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain links, got %v", d.Chain)
	}
	if d.Postgres == nil || d.Postgres.Constraint != "payments_session_id_key" {
		t.Fatalf("expected postgres diagnostics, got %+v", d.Postgres)
	}

	fields := d.Fields()
	if fields["pg_code"] != "23505" || fields["pg_table"] != "payments" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty postgres fields should be omitted")
	}
}

func TestDumpOfPlainError(t *testing.T) {
	d := Dump(stdErrors.New("boom"))
	if d.Postgres != nil || d.Code != "" {
		t.Fatalf("unexpected dump %+v", d)
	}
	fields := d.Fields()
	if fields["error"] != "boom" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["error_chain"]; ok {
		t.Fatalf("single-link chain should not be logged")
	}
	if empty := Dump(nil); empty.Message != "" || empty.Chain != nil {
		t.Fatalf("nil should dump to the zero value")
	}
}
