package member

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TokenProvider supplies a bearer token for the upstream REST API.
// The OAuth exchange itself lives outside this engine; callers inject
// whatever credential plumbing the deployment uses.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a plain function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// CaspioSource looks up member snapshots directly against the upstream
// case-management REST API. Used where no Redis cache is deployed, or as
// a fallback when the cache is cold.
type CaspioSource struct {
	httpClient *resty.Client
	tokens     TokenProvider
	logger     *zap.Logger
}

// caspioRecordsResponse is the envelope the Caspio tables API returns.
type caspioRecordsResponse struct {
	Result []caspioMemberRecord `json:"Result"`
}

type caspioMemberRecord struct {
	MemberID             string `json:"Member_ID"`
	FirstName            string `json:"First_Name"`
	LastName             string `json:"Last_Name"`
	HealthPlan           string `json:"Health_Plan"`
	Status               string `json:"Status"`
	HoldForSocialWorker  string `json:"Hold_for_Social_Worker"`
	AuthorizationEndDate string `json:"Authorization_End_Date"`
}

// NewCaspioSource creates a CaspioSource against the given base URL
// (e.g. "https://<account>.caspio.com/rest/v2").
func NewCaspioSource(baseURL string, tokens TokenProvider, logger *zap.Logger) *CaspioSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	// No client-side retries: the caller owns retry and backoff policy.
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")

	return &CaspioSource{httpClient: client, tokens: tokens, logger: logger}
}

// memberPredicate builds the q.where filter. Embedded single quotes are
// doubled so a quoted id cannot reshape the upstream query.
func memberPredicate(memberID string) string {
	return fmt.Sprintf("Member_ID='%s'", strings.ReplaceAll(memberID, "'", "''"))
}

// Lookup fetches the member row from the upstream members table.
func (s *CaspioSource) Lookup(ctx context.Context, memberID string) (*Snapshot, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring upstream token: %w", err)
	}

	var envelope caspioRecordsResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("q.where", memberPredicate(memberID)).
		SetResult(&envelope).
		Get("/tables/Members/records")
	if err != nil {
		return nil, fmt.Errorf("member lookup request for %q: %w", memberID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		s.logger.Warn("upstream member lookup failed",
			zap.String("member_id", memberID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("member lookup for %q: upstream status %d", memberID, resp.StatusCode())
	}
	if len(envelope.Result) == 0 {
		return nil, fmt.Errorf("member %q: %w", memberID, ErrNotFound)
	}

	rec := envelope.Result[0]
	return &Snapshot{
		MemberID:             rec.MemberID,
		FirstName:            rec.FirstName,
		LastName:             rec.LastName,
		HealthPlan:           rec.HealthPlan,
		Status:               rec.Status,
		HoldForSocialWorker:  rec.HoldForSocialWorker,
		AuthorizationEndDate: rec.AuthorizationEndDate,
	}, nil
}
