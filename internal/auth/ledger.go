package auth

import (
	"fmt"
	"time"
)

const (
	// AuthorizationTimeout is how long an authorization lasts if nobody consumes it.
	AuthorizationTimeout = 172800 * time.Second
	// MaxAuthorizations bounds the number of live authorization records.
	MaxAuthorizations = 50
)

// Record is one admin's consent for another admin to perform an operation.
type Record struct {
	Timestamp time.Time     `json:"timestamp"`
	AllowerID uint8         `json:"allower_id"`
	AllowedID uint8         `json:"allowed_id"`
	Operation OperationKind `json:"operation"`
	Params    Params        `json:"params"`
}

func (r Record) matches(allowedID uint8, op OperationKind, p Params) bool {
	return r.AllowedID == allowedID && r.Operation == op && r.Params.Equal(p)
}

// Ledger holds pending authorization records. Expired records are purged lazily on
// every access; there is no background timer.
type Ledger struct {
	records []Record
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make([]Record, 0, MaxAuthorizations)}
}

// Purge drops every record whose timestamp + AuthorizationTimeout is not after now.
func (l *Ledger) Purge(now time.Time) {
	kept := l.records[:0]
	for _, r := range l.records {
		if r.Timestamp.Add(AuthorizationTimeout).After(now) {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// Authorize appends a record allowing allowedID to perform op with params p.
func (l *Ledger) Authorize(now time.Time, allowerID, allowedID uint8, op OperationKind, p Params) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOperation, uint8(op))
	}
	if allowerID == allowedID {
		return ErrSelfAuthorization
	}

	l.Purge(now)

	if len(l.records) >= MaxAuthorizations {
		return ErrAuthorizationsFull
	}
	for _, r := range l.records {
		if r.AllowerID == allowerID && r.matches(allowedID, op, p) {
			return fmt.Errorf("%w: %s for admin #%d", ErrDuplicateAuth, op, allowedID)
		}
	}

	l.records = append(l.records, Record{
		Timestamp: now,
		AllowerID: allowerID,
		AllowedID: allowedID,
		Operation: op,
		Params:    p.clone(),
	})
	return nil
}

// Check verifies that at least min distinct admins authorized adminID to perform op with
// exactly the parameters p, then consumes those records. Records for the same operation
// with different parameters are left untouched.
func (l *Ledger) Check(now time.Time, adminID uint8, op OperationKind, p Params, min uint8) error {
	l.Purge(now)

	count := 0
	for _, r := range l.records {
		if r.matches(adminID, op, p) {
			count++
		}
	}
	if count < int(min) {
		return fmt.Errorf("%w: %s needs %d authorizations, admin #%d has %d",
			ErrNotAuthorized, op, min, adminID, count)
	}

	kept := l.records[:0]
	for _, r := range l.records {
		if !r.matches(adminID, op, p) {
			kept = append(kept, r)
		}
	}
	l.records = kept
	return nil
}

// DropAdmin removes every record given by or to the admin.
func (l *Ledger) DropAdmin(id uint8) {
	kept := l.records[:0]
	for _, r := range l.records {
		if r.AllowerID != id && r.AllowedID != id {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// Records returns a copy of the live records as of now.
func (l *Ledger) Records(now time.Time) []Record {
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		if r.Timestamp.Add(AuthorizationTimeout).After(now) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of stored records, expired ones included.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{records: make([]Record, len(l.records), MaxAuthorizations)}
	for i, r := range l.records {
		r.Params = r.Params.clone()
		c.records[i] = r
	}
	return c
}
