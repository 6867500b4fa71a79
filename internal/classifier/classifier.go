package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/mkka7944/billing-system/internal/models"
)

// KeyLookup reports whether a survey identifier exists in the
// reference table. Implementations must be read-only; the classifier
// never mutates anything.
type KeyLookup interface {
	Has(surveyID string) bool
}

// KeySet is an in-memory KeyLookup over the downloaded reference keys.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from a list of survey identifiers.
func NewKeySet(ids []string) KeySet {
	s := make(KeySet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

// Has implements KeyLookup.
func (s KeySet) Has(surveyID string) bool {
	_, ok := s[surveyID]
	return ok
}

// Classifier assigns each incoming record one of SYNCED, PENDING_SYNC
// or REJECTED. A missing survey reference is a legitimate pre-billing
// state, never an error: the owning unit may simply not have been
// uploaded yet.
type Classifier struct {
	keys     KeyLookup
	evidence map[string]string // PSID -> source document, nil when no extraction ran
	now      func() time.Time
}

// New creates a classifier. evidence may be nil; bills then default to
// the biller-list tier.
func New(keys KeyLookup, evidence map[string]string) *Classifier {
	return &Classifier{
		keys:     keys,
		evidence: evidence,
		now:      time.Now,
	}
}

// Classify validates one bill candidate and returns its classification.
// It never returns an error; a field that fails to parse folds into a
// REJECTED outcome with the reason attached.
func (c *Classifier) Classify(cand models.BillCandidate) models.Classified {
	key := cand.PSID + "/" + cand.BillMonth

	if cand.PSID == "" {
		return rejected(key, "missing psid")
	}
	if cand.BillMonth == "" {
		return rejected(key, "missing billing month")
	}
	if _, err := time.Parse(models.BillMonthLayout, cand.BillMonth); err != nil {
		return rejected(key, fmt.Sprintf("unparseable billing month %q", cand.BillMonth))
	}

	monthlyFee, err := models.ParseMoney(cand.MonthlyFee)
	if err != nil {
		return rejected(key, fmt.Sprintf("monthly fee: %v", err))
	}
	arrears, err := models.ParseMoney(cand.Arrears)
	if err != nil {
		return rejected(key, fmt.Sprintf("arrears: %v", err))
	}
	amountDue, err := models.ParseMoney(cand.AmountDue)
	if err != nil {
		return rejected(key, fmt.Sprintf("amount due: %v", err))
	}
	paidAmount, err := models.ParseMoney(cand.PaidAmount)
	if err != nil {
		return rejected(key, fmt.Sprintf("paid amount: %v", err))
	}
	fine, err := models.ParseMoney(cand.Fine)
	if err != nil {
		return rejected(key, fmt.Sprintf("fine: %v", err))
	}

	status, err := parsePaymentStatus(cand.PaymentStatus)
	if err != nil {
		return rejected(key, err.Error())
	}

	var paidDate *time.Time
	if cand.PaidDate != "" {
		d, err := time.Parse(models.PaidDateLayout, cand.PaidDate)
		if err != nil {
			return rejected(key, fmt.Sprintf("unparseable paid date %q", cand.PaidDate))
		}
		paidDate = &d
	}

	tier := models.TierListed
	if _, issued := c.evidence[cand.PSID]; issued {
		tier = models.TierIssued
	}

	bill := &models.BillRecord{
		PSID:          cand.PSID,
		BillMonth:     cand.BillMonth,
		SurveyID:      cand.SurveyID,
		MonthlyFee:    monthlyFee,
		Arrears:       arrears,
		AmountDue:     amountDue,
		PaidAmount:    paidAmount,
		Fine:          fine,
		PaymentStatus: status,
		PaidDate:      paidDate,
		UploadedAt:    c.now(),
		Tier:          tier,
	}

	// The record is well-formed. An unresolved reference means the
	// owning unit is not in the reference table yet: pending, not an
	// error.
	out := models.Classified{
		Key:   key,
		State: models.StateSynced,
		Bill:  bill,
	}
	switch {
	case cand.SurveyID == "":
		out.State = models.StatePendingSync
		out.Reason = "no survey reference on record"
	case !c.keys.Has(cand.SurveyID):
		out.State = models.StatePendingSync
		out.Reason = fmt.Sprintf("survey unit %s not yet synced", cand.SurveyID)
	}

	// A repeated reference within one export still uploads (the upsert
	// makes the last row win) but the outcome line carries a marker so
	// operators can trace the source rows.
	if cand.Duplicate {
		note := "duplicate survey reference " + cand.SurveyID
		if out.Reason != "" {
			out.Reason += "; " + note
		} else {
			out.Reason = note
		}
	}

	return out
}

// ClassifyUnit validates one survey unit before upload. Units have no
// reference to resolve, so the only outcomes are SYNCED and REJECTED.
func ClassifyUnit(unit models.SurveyUnit) models.Classified {
	if unit.SurveyID == "" {
		return models.Classified{
			Key:    "(no id)",
			State:  models.StateRejected,
			Reason: "missing survey identifier",
		}
	}
	u := unit
	return models.Classified{
		Key:   unit.SurveyID,
		State: models.StateSynced,
		Unit:  &u,
	}
}

func parsePaymentStatus(s string) (models.PaymentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNPAID":
		return models.PaymentUnpaid, nil
	case "PAID":
		return models.PaymentPaid, nil
	case "ARREARS":
		return models.PaymentArrears, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

func rejected(key, reason string) models.Classified {
	return models.Classified{
		Key:    key,
		State:  models.StateRejected,
		Reason: reason,
	}
}
