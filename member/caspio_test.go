package member_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcbloome/calaim-visit-engine/member"
)

func staticToken(token string) member.TokenFunc {
	return func(context.Context) (string, error) { return token, nil }
}

type upstream struct {
	requests  atomic.Int64
	lastAuth  string
	lastWhere string
	status    int
	rows      []map[string]string
}

func (u *upstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		u.lastAuth = r.Header.Get("Authorization")
		u.lastWhere = r.URL.Query().Get("q.where")
		if u.status != 0 {
			w.WriteHeader(u.status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"Result": u.rows})
	}
}

func TestCaspioLookup_MapsRecord(t *testing.T) {
	up := &upstream{rows: []map[string]string{{
		"Member_ID":              "M-1",
		"First_Name":             "Jane",
		"Last_Name":              "Doe",
		"Health_Plan":            "Kaiser",
		"Status":                 "Authorized",
		"Hold_for_Social_Worker": "No",
		"Authorization_End_Date": "2025-12-31",
	}}}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	src := member.NewCaspioSource(srv.URL, staticToken("tok-123"), nil)
	snap, err := src.Lookup(context.Background(), "M-1")
	require.NoError(t, err)

	assert.Equal(t, "M-1", snap.MemberID)
	assert.Equal(t, "Kaiser", snap.HealthPlan)
	assert.Equal(t, "Authorized", snap.Status)
	assert.Equal(t, "2025-12-31", snap.AuthorizationEndDate)
	assert.Equal(t, "Bearer tok-123", up.lastAuth)
	assert.Equal(t, "Member_ID='M-1'", up.lastWhere)
}

func TestCaspioLookup_EscapesQuotesInMemberID(t *testing.T) {
	up := &upstream{}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	src := member.NewCaspioSource(srv.URL, staticToken("tok"), nil)
	_, err := src.Lookup(context.Background(), "M-1' OR '1'='1")
	require.ErrorIs(t, err, member.ErrNotFound)

	assert.Equal(t, "Member_ID='M-1'' OR ''1''=''1'", up.lastWhere)
}

func TestCaspioLookup_EmptyResultIsNotFound(t *testing.T) {
	up := &upstream{}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	src := member.NewCaspioSource(srv.URL, staticToken("tok"), nil)
	_, err := src.Lookup(context.Background(), "M-404")
	assert.ErrorIs(t, err, member.ErrNotFound)
}

func TestCaspioLookup_UpstreamErrorNotRetried(t *testing.T) {
	up := &upstream{status: http.StatusInternalServerError}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	src := member.NewCaspioSource(srv.URL, staticToken("tok"), nil)
	_, err := src.Lookup(context.Background(), "M-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	assert.EqualValues(t, 1, up.requests.Load(), "one fetch per lookup; backoff belongs to the caller")
}

func TestCaspioLookup_TokenFailure(t *testing.T) {
	srv := httptest.NewServer((&upstream{}).handler())
	t.Cleanup(srv.Close)

	boom := errors.New("credential store offline")
	src := member.NewCaspioSource(srv.URL,
		member.TokenFunc(func(context.Context) (string, error) { return "", boom }), nil)

	_, err := src.Lookup(context.Background(), "M-1")
	assert.ErrorIs(t, err, boom)
}
