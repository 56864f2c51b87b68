package models

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestAssociation_RefreshActiveKey(t *testing.T) {
	a := Association{OasysAssessmentPk: "42", EntityType: RecordTypePlan}
	a.RefreshActiveKey()
	if a.ActiveKey == nil || *a.ActiveKey != "42|PLAN" {
		t.Fatalf("unexpected active key: %v", a.ActiveKey)
	}
	a.Deleted = true
	a.RefreshActiveKey()
	if a.ActiveKey != nil {
		t.Fatalf("deleted association must not hold an active key")
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql 1062", fmt.Errorf("insert: %w", &mysqlDriver.MySQLError{Number: 1062}), true},
		{"mysql other", &mysqlDriver.MySQLError{Number: 1146}, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"memstore", ErrDuplicateKey, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsDuplicateKeyError(tt.err); got != tt.want {
			t.Fatalf("%s: got %v want %v", tt.name, got, tt.want)
		}
	}
}

func TestVersionEvent_IsCountersignOutcome(t *testing.T) {
	for _, e := range []VersionEvent{VersionEventCountersigned, VersionEventAwaitingDoubleCountersign, VersionEventDoubleCountersigned, VersionEventRejected} {
		if !e.IsCountersignOutcome() {
			t.Fatalf("%s should mutate in place", e)
		}
	}
	for _, e := range []VersionEvent{VersionEventCreated, VersionEventLocked, VersionEventSelfSigned, VersionEventRolledBack, VersionEventCloned} {
		if e.IsCountersignOutcome() {
			t.Fatalf("%s should mint", e)
		}
	}
}
