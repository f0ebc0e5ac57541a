package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type OutcomePublisherSuite struct {
	suite.Suite
	wm  *writerMock
	pub *OutcomePublisher
}

func (s *OutcomePublisherSuite) SetupTest() {
	s.wm = &writerMock{}
	s.pub = newOutcomePublisherWithWriter(s.wm, "dispatch.outcomes")
}

func (s *OutcomePublisherSuite) TestExpiredOutcome_OneMessage() {
	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			return len(msgs) == 1 && string(msgs[0].Key) == "job-42" && msgs[0].Topic == "dispatch.outcomes"
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.pub.PublishOutcome(context.Background(), messages.JobOutcome{
		JobID:  "job-42",
		Status: models.JobStatusExpired,
	}))
	s.wm.AssertExpectations(s.T())
}

func (s *OutcomePublisherSuite) TestWriteError_WrappedWithJob() {
	want := errors.New("broker down")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.pub.PublishOutcome(context.Background(), messages.JobOutcome{JobID: "job-7"})
	s.Require().ErrorIs(err, want)
	s.Require().Contains(err.Error(), "kafka publish outcome job-7")
	s.wm.AssertExpectations(s.T())
}

func (s *OutcomePublisherSuite) TestMissingJobID_NotWritten() {
	err := s.pub.PublishOutcome(context.Background(), messages.JobOutcome{Status: models.JobStatusExpired})
	s.Require().Error(err)
	s.wm.AssertNotCalled(s.T(), "WriteMessages", mock.Anything, mock.Anything)
}

func TestOutcomePublisherSuite(t *testing.T) {
	suite.Run(t, new(OutcomePublisherSuite))
}
