package audit

import (
	"context"
	"fmt"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/metrics"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListBids(ctx context.Context, jobID string) ([]*models.Bid, error)
}

// Rule names, also used as metric labels.
const (
	RuleJobMissing      = "job_missing"
	RuleJobNotTerminal  = "job_not_terminal"
	RuleStatusMismatch  = "status_mismatch"
	RuleMultipleWinners = "multiple_winners"
	RuleOpenBids        = "open_bids"
	RuleWinnerMismatch  = "winner_mismatch"
)

type Violation struct {
	Rule   string
	Detail string
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Detail
}

// Service checks committed job outcomes against the ledger.
type Service struct {
	repo    Repository
	metrics *metrics.Audit
	log     *logrus.Entry
}

func New(repo Repository, m *metrics.Audit, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Service{repo: repo, metrics: m, log: log.Component("audit")}
}

// Check returns every rule the ledger state of the outcome's job breaks.
func (s *Service) Check(ctx context.Context, out messages.JobOutcome) ([]Violation, error) {
	if out.JobID == "" {
		return nil, errors.New("job_id is required")
	}

	job, err := s.repo.GetJob(ctx, out.JobID)
	if errors.Is(err, models.ErrNotFound) {
		return []Violation{{Rule: RuleJobMissing, Detail: "job " + out.JobID + " is not in the ledger"}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	bids, err := s.repo.ListBids(ctx, out.JobID)
	if err != nil {
		return nil, errors.Wrap(err, "list bids")
	}

	var vs []Violation
	if !job.Status.Terminal() {
		vs = append(vs, Violation{RuleJobNotTerminal, fmt.Sprintf("job is %s", job.Status)})
	}
	if out.Status != "" && out.Status != job.Status {
		vs = append(vs, Violation{RuleStatusMismatch, fmt.Sprintf("outcome says %s, ledger has %s", out.Status, job.Status)})
	}

	var winners []string
	for _, b := range bids {
		switch b.Status {
		case models.BidStatusWon:
			winners = append(winners, b.CourierID)
		case models.BidStatusOffered, models.BidStatusAccepted:
			vs = append(vs, Violation{RuleOpenBids, fmt.Sprintf("bid %s of %s left %s", b.ID, b.CourierID, b.Status)})
		}
	}
	if len(winners) > 1 {
		vs = append(vs, Violation{RuleMultipleWinners, fmt.Sprintf("%d WON bids: %v", len(winners), winners)})
	}

	assigned := ""
	if job.AssignedCourier != nil {
		assigned = *job.AssignedCourier
	}
	switch {
	case job.Status == models.JobStatusAssigned && len(winners) == 0:
		vs = append(vs, Violation{RuleWinnerMismatch, "assigned job has no WON bid"})
	case job.Status == models.JobStatusAssigned && len(winners) == 1 && winners[0] != assigned:
		vs = append(vs, Violation{RuleWinnerMismatch, fmt.Sprintf("assigned to %q, WON bid belongs to %q", assigned, winners[0])})
	case job.Status == models.JobStatusExpired && (assigned != "" || len(winners) > 0):
		vs = append(vs, Violation{RuleWinnerMismatch, "expired job has a winner"})
	}
	return vs, nil
}

// Apply audits one consumed outcome. Violations are logged and counted;
// only ledger read failures are returned.
func (s *Service) Apply(ctx context.Context, out messages.JobOutcome) error {
	vs, err := s.Check(ctx, out)
	if err != nil {
		return err
	}

	rules := make([]string, 0, len(vs))
	for _, v := range vs {
		rules = append(rules, v.Rule)
	}
	s.metrics.RecordCheck(rules)

	log := s.log.WithFields(logrus.Fields{"job_id": out.JobID, "status": out.Status})
	if len(vs) == 0 {
		log.Debug("outcome consistent")
		return nil
	}
	for _, v := range vs {
		log.WithField("rule", v.Rule).Error(v.Detail)
	}
	return nil
}
