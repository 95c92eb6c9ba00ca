package collab

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	appconfig "github.com/spec-kit/support-desk/internal/config"
)

// OutboundEmail is a reply ready for delivery. InReplyTo carries the
// customer's message id for threading headers; nil when the ticket has none.
type OutboundEmail struct {
	To        string
	Subject   string
	Body      string
	InReplyTo *string
}

// Deliverer sends an approved response to the customer. Failure leaves the
// ticket APPROVED; the caller may retry the send.
type Deliverer interface {
	Deliver(ctx context.Context, email OutboundEmail) error
}

// sesDeliverer sends replies through AWS SES v2.
type sesDeliverer struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
}

// NewSESDeliverer builds an SES-backed deliverer from static credentials.
func NewSESDeliverer(ctx context.Context, cfg appconfig.DeliveryConfig) (Deliverer, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AWSKey, cfg.AWSSecret, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &sesDeliverer{
		client:      sesv2.NewFromConfig(awsCfg),
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
	}, nil
}

func (d *sesDeliverer) Deliver(ctx context.Context, email OutboundEmail) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", d.fromName, d.fromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{email.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(email.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		ReplyToAddresses: []string{d.fromAddress},
	}

	if _, err := d.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// logDeliverer records sends without talking to a provider. Used when SES is
// not configured so the approval workflow stays exercisable in development.
type logDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer builds a logging deliverer.
func NewLogDeliverer(logger *zap.Logger) Deliverer {
	return &logDeliverer{logger: logger}
}

func (d *logDeliverer) Deliver(_ context.Context, email OutboundEmail) error {
	d.logger.Info("delivery (log only)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}
