package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sesStub struct {
	input *ses.SendEmailInput
	err   error
}

func (s *sesStub) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSendVisitSummary(t *testing.T) {
	stub := &sesStub{}
	sender := NewSESSender(stub, "noreply@example.com")

	err := sender.SendVisitSummary(context.Background(), "ana@example.com", VisitSummary{
		UserName:  "Ana",
		Arrival:   "2024-03-21T09:00:00",
		Departure: "2024-03-21T10:30:00",
		Duration:  "1h30m0s",
	})
	require.NoError(t, err)

	require.NotNil(t, stub.input)
	assert.Equal(t, "noreply@example.com", aws.ToString(stub.input.Source))
	assert.Equal(t, []string{"ana@example.com"}, stub.input.Destination.ToAddresses)
	assert.Equal(t, "Visit Summary", aws.ToString(stub.input.Message.Subject.Data))
	body := aws.ToString(stub.input.Message.Body.Text.Data)
	assert.Contains(t, body, "Hello Ana")
	assert.Contains(t, body, "Duration: 1h30m0s")
}

func TestSendVisitSummaryPropagatesError(t *testing.T) {
	sender := NewSESSender(&sesStub{err: errors.New("throttled")}, "noreply@example.com")
	err := sender.SendVisitSummary(context.Background(), "ana@example.com", VisitSummary{})
	assert.EqualError(t, err, "throttled")
}
