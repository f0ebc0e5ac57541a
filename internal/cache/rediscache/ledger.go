package rediscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const timeLayout = time.RFC3339Nano

// transitionScript moves KEYS[1].status to ARGV[1] when the current status is one of ARGV[5..].
// ARGV[2] is the new updated_at; ARGV[3]/ARGV[4] set an extra field when ARGV[3] is not empty.
// Returns -1 for a missing record, 0 when refused, 1 on success.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
local allowed = false
for i = 5, #ARGV do
  if ARGV[i] == cur then
    allowed = true
    break
  end
end
if not allowed then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
end
return 1
`)

func (s *Store) transition(ctx context.Context, key, next, field, value string, allowed []string) (int64, error) {
	args := []any{next, s.now().Format(timeLayout), field, value}
	for _, a := range allowed {
		args = append(args, a)
	}
	res, err := transitionScript.Run(ctx, s.c, []string{key}, args...).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "redis transition")
	}
	return res, nil
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	fields := map[string]any{
		"id":             job.ID,
		"restaurant_id":  job.RestaurantID,
		"pickup":         job.Pickup,
		"dropoff":        job.Dropoff,
		"menu_item":      job.MenuItem,
		"reward":         strconv.FormatFloat(job.Reward, 'f', 2, 64),
		"estimated_time": job.EstimatedTime,
		"origin_lon":     strconv.FormatFloat(job.Origin.Lon, 'f', -1, 64),
		"origin_lat":     strconv.FormatFloat(job.Origin.Lat, 'f', -1, 64),
		"status":         string(job.Status),
		"created_at":     job.CreatedAt.UTC().Format(timeLayout),
		"updated_at":     job.UpdatedAt.UTC().Format(timeLayout),
	}
	if job.AssignedCourier != nil {
		fields["assigned_courier"] = *job.AssignedCourier
	}
	if err := s.c.HSet(ctx, jobKey(job.ID), fields).Err(); err != nil {
		return errors.Wrap(err, "redis create job")
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	m, err := s.c.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis get job")
	}
	if len(m) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	return decodeJob(m), nil
}

func (s *Store) TransitionJob(ctx context.Context, id string, expected, next models.JobStatus, assignedCourier *string) (bool, error) {
	var allowed []string
	for _, st := range models.AllowedJobSources(expected, next) {
		allowed = append(allowed, string(st))
	}
	field, value := "", ""
	if assignedCourier != nil {
		field, value = "assigned_courier", *assignedCourier
	}
	res, err := s.transition(ctx, jobKey(id), string(next), field, value, allowed)
	if err != nil {
		return false, err
	}
	if res < 0 {
		return false, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	return res == 1, nil
}

func (s *Store) CreateBid(ctx context.Context, bid *models.Bid) error {
	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, bidKey(bid.ID), map[string]any{
		"id":         bid.ID,
		"job_id":     bid.JobID,
		"courier_id": bid.CourierID,
		"status":     string(bid.Status),
		"distance_m": strconv.FormatFloat(bid.DistanceMeters, 'f', -1, 64),
		"offered_at": bid.OfferedAt.UTC().Format(timeLayout),
		"updated_at": bid.UpdatedAt.UTC().Format(timeLayout),
	})
	pipe.SAdd(ctx, jobBidsKey(bid.JobID), bid.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis create bid")
	}
	return nil
}

func (s *Store) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	m, err := s.c.HGetAll(ctx, bidKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis get bid")
	}
	if len(m) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "bid %s", id)
	}
	return decodeBid(m), nil
}

func (s *Store) ListBids(ctx context.Context, jobID string) ([]*models.Bid, error) {
	ids, err := s.c.SMembers(ctx, jobBidsKey(jobID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list bids")
	}
	out := make([]*models.Bid, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBid(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// TransitionBid publishes the updated bid on the job's bid channel after a successful move.
// The announcement is best-effort: once the move is stored the call reports success.
func (s *Store) TransitionBid(ctx context.Context, id string, expected, next models.BidStatus) (bool, error) {
	var allowed []string
	for _, st := range models.AllowedBidSources(expected, next) {
		allowed = append(allowed, string(st))
	}
	res, err := s.transition(ctx, bidKey(id), string(next), "", "", allowed)
	if err != nil {
		return false, err
	}
	if res < 0 {
		return false, errors.Wrapf(models.ErrNotFound, "bid %s", id)
	}
	if res == 0 {
		return false, nil
	}

	if err := s.announceBid(ctx, id); err != nil {
		s.announceFailures.Add(1)
		s.log.WithError(err).WithFields(logrus.Fields{
			"bid_id": id,
			"status": next,
		}).Warn("bid change stored but not announced")
	}
	return true, nil
}

func (s *Store) announceBid(ctx context.Context, id string) error {
	bid, err := s.GetBid(ctx, id)
	if err != nil {
		return err
	}
	b, err := json.Marshal(bid)
	if err != nil {
		return errors.Wrap(err, "marshal bid")
	}
	if err := s.publish(ctx, jobBidsChannel(bid.JobID), b); err != nil {
		return errors.Wrap(err, "redis publish bid change")
	}
	return nil
}

func (s *Store) WatchBids(ctx context.Context, jobID string, statuses ...models.BidStatus) (<-chan models.Bid, error) {
	ps, err := s.subscribe(ctx, jobBidsChannel(jobID))
	if err != nil {
		return nil, err
	}

	out := make(chan models.Bid)
	go func() {
		defer close(out)
		defer ps.Close()
		forward(ctx, ps, out, func(payload string) (models.Bid, bool) {
			var bid models.Bid
			if err := json.Unmarshal([]byte(payload), &bid); err != nil {
				return bid, false
			}
			return bid, bid.JobID == jobID && statusIn(bid.Status, statuses)
		})
	}()
	return out, nil
}

func statusIn(st models.BidStatus, statuses []models.BidStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func decodeJob(m map[string]string) *models.Job {
	j := &models.Job{
		ID:            m["id"],
		RestaurantID:  m["restaurant_id"],
		Pickup:        m["pickup"],
		Dropoff:       m["dropoff"],
		MenuItem:      m["menu_item"],
		EstimatedTime: m["estimated_time"],
		Status:        models.JobStatus(m["status"]),
		CreatedAt:     parseTime(m["created_at"]),
		UpdatedAt:     parseTime(m["updated_at"]),
	}
	j.Reward, _ = strconv.ParseFloat(m["reward"], 64)
	j.Origin.Lon, _ = strconv.ParseFloat(m["origin_lon"], 64)
	j.Origin.Lat, _ = strconv.ParseFloat(m["origin_lat"], 64)
	if c, ok := m["assigned_courier"]; ok && c != "" {
		j.AssignedCourier = &c
	}
	return j
}

func decodeBid(m map[string]string) *models.Bid {
	b := &models.Bid{
		ID:        m["id"],
		JobID:     m["job_id"],
		CourierID: m["courier_id"],
		Status:    models.BidStatus(m["status"]),
		OfferedAt: parseTime(m["offered_at"]),
		UpdatedAt: parseTime(m["updated_at"]),
	}
	b.DistanceMeters, _ = strconv.ParseFloat(m["distance_m"], 64)
	return b
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
