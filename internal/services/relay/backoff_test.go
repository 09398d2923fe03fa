package relay

import (
	"testing"
	"time"

	relaymocks "github.com/BearBump/CargoLedger/internal/services/relay/mocks"
	"github.com/stretchr/testify/suite"
)

type BackoffSuite struct {
	suite.Suite
}

func (s *BackoffSuite) TestDefaultSteps() {
	b := NewBackoff(BackoffConfig{}, &relaymocks.Rand{})
	s.Equal(5*time.Minute, b.Delay(0))
	s.Equal(5*time.Minute, b.Delay(1))
	s.Equal(15*time.Minute, b.Delay(2))
	s.Equal(30*time.Minute, b.Delay(3))
	s.Equal(60*time.Minute, b.Delay(4))
	s.Equal(60*time.Minute, b.Delay(100))
}

func (s *BackoffSuite) TestOverrides() {
	b := NewBackoff(BackoffConfig{Step1: time.Second, Step3: time.Hour}, nil)
	s.Equal(time.Second, b.Delay(1))
	s.Equal(15*time.Minute, b.Delay(2))
	s.Equal(time.Hour, b.Delay(3))
}

func (s *BackoffSuite) TestJitterUsesRand() {
	m := &relaymocks.Rand{}
	m.On("Int63n", int64(10*time.Second)+1).Return(int64(3 * time.Second)).Once()

	b := NewBackoff(BackoffConfig{Jitter: 10 * time.Second}, m)
	s.Equal(15*time.Minute+3*time.Second, b.Delay(2))
	m.AssertExpectations(s.T())
}

func TestBackoffSuite(t *testing.T) {
	suite.Run(t, new(BackoffSuite))
}
