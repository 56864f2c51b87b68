package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type RecordType string

const (
	RecordTypeAssessment RecordType = "ASSESSMENT"
	RecordTypePlan       RecordType = "PLAN"
	RecordTypeAAPPlan    RecordType = "AAP_PLAN"
)

// RecordTypes is the fixed order lifecycle operations fan out in.
var RecordTypes = []RecordType{RecordTypeAssessment, RecordTypePlan, RecordTypeAAPPlan}

func (t RecordType) IsValid() bool {
	switch t {
	case RecordTypeAssessment, RecordTypePlan, RecordTypeAAPPlan:
		return true
	}
	return false
}

// IsPlan groups the two plan variants for the version history feed.
func (t RecordType) IsPlan() bool {
	return t == RecordTypePlan || t == RecordTypeAAPPlan
}

func (t RecordType) String() string {
	return string(t)
}

func (t *RecordType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("record type must be string")
	}
	v := RecordType(strings.ToUpper(str))
	if !v.IsValid() {
		return fmt.Errorf("invalid record type %q", str)
	}
	*t = v
	return nil
}

type VersionEvent string

const (
	VersionEventCreated                   VersionEvent = "CREATED"
	VersionEventLocked                    VersionEvent = "LOCKED"
	VersionEventSelfSigned                VersionEvent = "SELF_SIGNED"
	VersionEventAwaitingCountersign       VersionEvent = "AWAITING_COUNTERSIGN"
	VersionEventCountersigned             VersionEvent = "COUNTERSIGNED"
	VersionEventAwaitingDoubleCountersign VersionEvent = "AWAITING_DOUBLE_COUNTERSIGN"
	VersionEventDoubleCountersigned       VersionEvent = "DOUBLE_COUNTERSIGNED"
	VersionEventRejected                  VersionEvent = "REJECTED"
	VersionEventRolledBack                VersionEvent = "ROLLED_BACK"
	VersionEventCloned                    VersionEvent = "CLONED"
	VersionEventSoftDelete                VersionEvent = "SOFT_DELETE"
	VersionEventUndelete                  VersionEvent = "UNDELETE"
)

func (e VersionEvent) IsValid() bool {
	switch e {
	case VersionEventCreated, VersionEventLocked, VersionEventSelfSigned, VersionEventAwaitingCountersign,
		VersionEventCountersigned, VersionEventAwaitingDoubleCountersign, VersionEventDoubleCountersigned,
		VersionEventRejected, VersionEventRolledBack, VersionEventCloned, VersionEventSoftDelete, VersionEventUndelete:
		return true
	}
	return false
}

// IsCountersignOutcome reports events that mutate an existing version instead of minting one.
func (e VersionEvent) IsCountersignOutcome() bool {
	switch e {
	case VersionEventCountersigned, VersionEventAwaitingDoubleCountersign,
		VersionEventDoubleCountersigned, VersionEventRejected:
		return true
	}
	return false
}

func (e *VersionEvent) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("version event must be string")
	}
	v := VersionEvent(strings.ToUpper(str))
	if !v.IsValid() {
		return fmt.Errorf("invalid version event %q", str)
	}
	*e = v
	return nil
}

type SignType string

const (
	SignTypeSelf        SignType = "SELF"
	SignTypeCountersign SignType = "COUNTERSIGN"
)

func (s SignType) IsValid() bool {
	return s == SignTypeSelf || s == SignTypeCountersign
}

// StatusCountersigned is the VersionDetails status the history feed keys on.
const StatusCountersigned = string(VersionEventCountersigned)
