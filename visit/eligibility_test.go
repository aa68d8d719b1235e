package visit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcbloome/calaim-visit-engine/member"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// fixedNow pins "today" so the Kaiser date rule is deterministic.
var fixedNow = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.Local)

func newEvaluator() *visit.Evaluator {
	return &visit.Evaluator{Now: func() time.Time { return fixedNow }}
}

func authorizedMember() *member.Snapshot {
	return &member.Snapshot{
		MemberID:   "M-1",
		HealthPlan: "Health Net",
		Status:     "Authorized",
	}
}

func TestEvaluate_AuthorizedMember_AllActionsAllowed(t *testing.T) {
	e := newEvaluator()
	m := authorizedMember()

	for _, action := range []visit.Action{visit.ActionSave, visit.ActionSubmit, visit.ActionSignOff} {
		assert.NoError(t, e.Evaluate(m, action), "action %s", action)
	}
}

func TestEvaluate_StatusFamily(t *testing.T) {
	e := newEvaluator()

	cases := []struct {
		status  string
		allowed bool
	}{
		{"Authorized", true},
		{"authorized", true},
		{"AUTHORIZED", true},
		{"Authorized - Kaiser", true},
		{"  Authorized  ", true},
		{"Pending", false},
		{"Denied", false},
		{"Authorization Pending", false}, // prefix must be the word, not a fragment
		{"", false},
	}

	for _, tc := range cases {
		m := authorizedMember()
		m.Status = tc.status
		err := e.Evaluate(m, visit.ActionSave)
		if tc.allowed {
			assert.NoError(t, err, "status %q", tc.status)
		} else {
			require.Error(t, err, "status %q", tc.status)
			assert.True(t, visit.IsPrecondition(err))
			assert.Contains(t, err.Error(), "Authorized")
		}
	}
}

func TestEvaluate_HoldDeniesEvenWhenAuthorized(t *testing.T) {
	e := newEvaluator()

	for _, hold := range []any{true, "Y", "1", "yes", "on", "Hold for SW"} {
		m := authorizedMember()
		m.HoldForSocialWorker = hold
		err := e.Evaluate(m, visit.ActionSubmit)
		require.Error(t, err, "hold %#v", hold)
		assert.True(t, visit.IsPrecondition(err))
		assert.Contains(t, err.Error(), "hold")
	}
}

func TestEvaluate_RuleOrder_StatusBeforeHold(t *testing.T) {
	// First failing rule wins: a pending member on hold gets the status
	// reason, not the hold reason.
	e := newEvaluator()
	m := authorizedMember()
	m.Status = "Pending"
	m.HoldForSocialWorker = "Y"

	err := e.Evaluate(m, visit.ActionSave)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authorized")
	assert.NotContains(t, err.Error(), "hold")
}

func TestEvaluate_KaiserExpiry(t *testing.T) {
	e := newEvaluator()

	cases := []struct {
		name    string
		endDate string
		allowed bool
	}{
		{"yesterday", "2025-03-14", false},
		{"today", "2025-03-15", true},
		{"future", "2025-06-30", true},
		{"yesterday slash format", "3/14/2025", false},
		{"future slash format", "12/31/2025", true},
		{"datetime suffix ignored", "2025-03-14T08:00:00", false},
		{"unparseable passes", "soon", true},
		{"empty passes", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := authorizedMember()
			m.HealthPlan = "Kaiser Permanente"
			m.AuthorizationEndDate = tc.endDate

			err := e.Evaluate(m, visit.ActionSignOff)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, visit.IsPrecondition(err))
				assert.Contains(t, err.Error(), "authorization ended on")
			}
		})
	}
}

func TestEvaluate_ExpiryIgnoredForNonKaiser(t *testing.T) {
	e := newEvaluator()
	m := authorizedMember()
	m.HealthPlan = "Health Net"
	m.AuthorizationEndDate = "2020-01-01"

	assert.NoError(t, e.Evaluate(m, visit.ActionSave))
}
