package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/noah-isme/visitor-attendance-api/pkg/config"
)

// VisitSummary describes a closed visit for the summary email.
type VisitSummary struct {
	UserName  string
	Arrival   string
	Departure string
	Duration  string
}

// Sender delivers visit summary emails.
type Sender interface {
	SendVisitSummary(ctx context.Context, to string, summary VisitSummary) error
}

// SESAPI is the subset of the SES client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends email through Amazon SES.
type SESSender struct {
	client SESAPI
	sender string
}

// NewSESSender wraps an SES client.
func NewSESSender(client SESAPI, sender string) *SESSender {
	return &SESSender{client: client, sender: sender}
}

// NewFromConfig loads AWS credentials from the default chain for the configured region.
func NewFromConfig(ctx context.Context, cfg config.MailConfig) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESSender(ses.NewFromConfig(awsCfg), cfg.Sender), nil
}

// SendVisitSummary emails the visitor a summary of the visit that just closed.
func (s *SESSender) SendVisitSummary(ctx context.Context, to string, summary VisitSummary) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Visit Summary"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(renderSummary(summary)),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	return err
}

func renderSummary(summary VisitSummary) string {
	name := summary.UserName
	if name == "" {
		name = "visitor"
	}
	return fmt.Sprintf("Hello %s,\n\nYour visit has been recorded.\nArrival: %s\nDeparture: %s\nDuration: %s\n",
		name, summary.Arrival, summary.Departure, summary.Duration)
}
