package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SyncState is the classification outcome of one record during an
// upload run. It is computed fresh on every run and never persisted:
// a record that is PENDING_SYNC today may become SYNCED once its
// survey unit is uploaded.
type SyncState string

const (
	StateSynced      SyncState = "SYNCED"
	StatePendingSync SyncState = "PENDING_SYNC"
	StateRejected    SyncState = "REJECTED"
)

// PaymentStatus payment status of a bill
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "PAID"
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentArrears PaymentStatus = "ARREARS"
)

// UnitTier lifecycle stage of a unit with respect to billing
type UnitTier int

const (
	// TierSurveyed: collected in the field, never designated for billing
	TierSurveyed UnitTier = 1
	// TierListed: on the biller list, but no bill document issued yet
	TierListed UnitTier = 2
	// TierIssued: a PDF bill exists for the unit's PSID
	TierIssued UnitTier = 3
)

// BillMonthLayout is the billing month format, e.g. "Nov-2025".
const BillMonthLayout = "Jan-2006"

// PaidDateLayout is the payment date format in portal exports.
const PaidDateLayout = "2006-01-02"

// SurveyUnit represents one physical consumer asset collected in the
// field. survey_id is the natural key and is immutable once assigned;
// re-surveys update every other field. Units are never hard-deleted,
// only deactivated via IsActive.
type SurveyUnit struct {
	SurveyID        string
	SurveyorName    string
	SurveyTimestamp string
	CityDistrict    string
	UCName          string
	UnitType        string // categorical business type, e.g. "Barber Shop"
	SurveyCategory  string
	ConsumerName    string
	Mobile          string
	Address         string
	GPSLat          string
	GPSLng          string
	IsActive        bool
}

// Key returns the natural key used for upserts and audit logging.
func (u *SurveyUnit) Key() string { return u.SurveyID }

// BillRecord represents one monthly charge for a unit. The composite
// key is (psid, bill_month); SurveyID may be empty at ingestion time
// when the owning unit has not been synced yet.
type BillRecord struct {
	PSID          string
	BillMonth     string // BillMonthLayout format
	SurveyID      string
	MonthlyFee    decimal.Decimal
	Arrears       decimal.Decimal
	AmountDue     decimal.Decimal
	PaidAmount    decimal.Decimal
	Fine          decimal.Decimal
	PaymentStatus PaymentStatus
	PaidDate      *time.Time
	UploadedAt    time.Time
	Tier          UnitTier
}

// Key returns the composite key used for upserts and audit logging.
func (b *BillRecord) Key() string { return b.PSID + "/" + b.BillMonth }

// BillCandidate is a raw biller-list row prior to classification. All
// fields are strings as read from the export; the classifier owns
// parsing and validation, so a malformed row can be folded into a
// REJECTED outcome instead of aborting ingestion.
type BillCandidate struct {
	PSID          string
	SurveyID      string
	BillMonth     string
	MonthlyFee    string
	Arrears       string
	AmountDue     string
	PaidAmount    string
	Fine          string
	PaymentStatus string
	PaidDate      string
	SourceFile    string
	Line          int
	Duplicate     bool // another row in the same file references the same survey unit
}

// Classified is a tagged-variant record: exactly one of Unit or Bill
// is set, matching the table the record is destined for. Reason is
// human-readable; PENDING_SYNC and REJECTED always carry one, SYNCED
// only when the record deserves an operator note (e.g. a duplicate
// reference in the source file).
type Classified struct {
	Key    string
	State  SyncState
	Reason string
	Unit   *SurveyUnit
	Bill   *BillRecord
}

// RunStats accumulates per-state outcome counts for one table during
// one upload run.
type RunStats struct {
	Table    string
	Synced   int
	Pending  int
	Rejected int
}

// Add increments the counter matching the given state.
func (s *RunStats) Add(state SyncState) {
	switch state {
	case StateSynced:
		s.Synced++
	case StatePendingSync:
		s.Pending++
	case StateRejected:
		s.Rejected++
	}
}

// Total returns the number of records counted.
func (s *RunStats) Total() int {
	return s.Synced + s.Pending + s.Rejected
}

// ParseMoney converts a monetary field from a portal export into a
// decimal. Blank values and the portal's "-" placeholder mean zero;
// thousands separators are tolerated. Anything else that fails to
// parse is a data error.
func ParseMoney(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	if v == "" || v == "-" {
		return decimal.Zero, nil
	}
	v = strings.ReplaceAll(v, ",", "")
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
