package store

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chessdojo/dirtree/directory"
)

// --- containsPlaceholder Tests ---

func TestContainsPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		text string
		ph   string
		want bool
	}{
		{"exact", "#k1 = :a1", "#k1", true},
		{"prefix of longer placeholder", "#k10 = :a10", "#k1", false},
		{"later whole occurrence", "#k10 = :a10, #k1 = :a1", "#k1", true},
		{"at end", "attribute_exists(#i.#k0) AND #v = :ver", ":ver", true},
		{"followed by bracket", "REMOVE #n[3]", "#n", true},
		{"followed by dot", "#i.#k0", "#i", true},
		{"longer name", "attribute_exists(#id)", "#i", false},
		{"absent", "SET #u = :u", "#v", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsPlaceholder(tt.text, tt.ph); got != tt.want {
				t.Errorf("containsPlaceholder(%q, %q) = %v, want %v", tt.text, tt.ph, got, tt.want)
			}
		})
	}
}

// --- updateExpr Tests ---

func TestUpdateExpr_SetAndRemove(t *testing.T) {
	e := newUpdateExpr()
	e.exists()
	k := e.name("k", 0, "cohort/game")
	e.remove("#i.%s", k)
	e.remove("#n[%d]", 4)
	e.touch("2024-01-01T00:00:00Z", true)

	want := "SET #u = :u, #v = if_not_exists(#v, :zero) + :one REMOVE #i.#k0, #n[4]"
	if got := e.update(); got != want {
		t.Errorf("update() = %q, want %q", got, want)
	}
	if got := e.condition(); got != "attribute_exists(#id)" {
		t.Errorf("condition() = %q", got)
	}
}

func TestUpdateExpr_UsedNamesOnly(t *testing.T) {
	e := newUpdateExpr()
	e.exists()
	e.touch("now", false)

	names := e.usedNames()
	if len(names) != 2 || names["#id"] != "id" || names["#u"] != "updatedAt" {
		t.Errorf("unexpected names %v", names)
	}

	values := e.usedValues()
	if len(values) != 1 {
		t.Errorf("expected only :u, got %v", values)
	}
	if _, ok := values[":zero"]; ok {
		t.Error(":zero must not be sent when the version is not bumped")
	}
}

func TestUpdateExpr_ExpectVersion(t *testing.T) {
	e := newUpdateExpr()
	e.expectVersion(0)
	if got := e.condition(); got != "attribute_not_exists(#v)" {
		t.Errorf("legacy condition = %q", got)
	}

	e = newUpdateExpr()
	e.expectVersion(12)
	if got := e.condition(); got != "#v = :ver" {
		t.Errorf("versioned condition = %q", got)
	}
	n, ok := e.values[":ver"].(*types.AttributeValueMemberN)
	if !ok || n.Value != "12" {
		t.Errorf("expected :ver = 12, got %v", e.values[":ver"])
	}
}

func TestUpdateExpr_NoValues(t *testing.T) {
	e := newUpdateExpr()
	e.exists()
	if values := e.usedValues(); values != nil {
		t.Errorf("expected nil values, got %v", values)
	}
}

// --- statementError Tests ---

func TestStatementError_Success(t *testing.T) {
	if err := statementError("op", types.BatchStatementResponse{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestStatementError_Codes(t *testing.T) {
	tests := []struct {
		code types.BatchStatementErrorCodeEnum
		want string
	}{
		{types.BatchStatementErrorCodeEnumConditionalCheckFailed, "conflict"},
		{types.BatchStatementErrorCodeEnumValidationError, "invalid request"},
		{types.BatchStatementErrorCodeEnumResourceNotFound, "not found"},
		{types.BatchStatementErrorCodeEnumThrottlingError, "transient"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := statementError("op", types.BatchStatementResponse{
				Error: &types.BatchStatementError{Code: tt.code, Message: aws.String("msg")},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := kindName(err); got != tt.want {
				t.Errorf("kind = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- time helpers ---

func TestFormatTime_Zero(t *testing.T) {
	if got := formatTime(time.Time{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if !parseTime("").IsZero() {
		t.Error("expected zero time for empty string")
	}
	if !parseTime("not a time").IsZero() {
		t.Error("expected zero time for garbage")
	}
}

func TestFormatTime_UTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2024, 5, 6, 14, 0, 0, 0, loc)
	if got := formatTime(in); got != "2024-05-06T12:00:00Z" {
		t.Errorf("formatTime = %q", got)
	}
	if !parseTime(formatTime(in)).Equal(in) {
		t.Error("round trip changed the instant")
	}
}

// --- Config Tests ---

func TestConfigValidate_BreakerDefaults(t *testing.T) {
	cfg := Config{Breaker: BreakerConfig{Enabled: true}}
	cfg.validate()

	if cfg.Breaker.MaxFailures != 5 {
		t.Errorf("expected MaxFailures 5, got %d", cfg.Breaker.MaxFailures)
	}
	if cfg.Breaker.OpenTimeout != 30*time.Second {
		t.Errorf("expected OpenTimeout 30s, got %v", cfg.Breaker.OpenTimeout)
	}
	if cfg.Breaker.HalfOpenRequests != 1 {
		t.Errorf("expected HalfOpenRequests 1, got %d", cfg.Breaker.HalfOpenRequests)
	}
	if !cfg.Breaker.Enabled {
		t.Error("validate must not disable the breaker")
	}
}

func kindName(err error) string {
	return directory.KindOf(err).String()
}
