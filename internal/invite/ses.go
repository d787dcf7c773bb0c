package invite

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds SES connection and sender identity settings.
type SESConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	FromEmail string
	FromName  string
	// ConfigurationSet is optional.
	ConfigurationSet string
}

// SESSender delivers invitations through AWS SES using the SDK v2.
type SESSender struct {
	client   sesAPI
	cfg      SESConfig
	renderer *Renderer
}

// NewSESSender builds an SES client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain.
func NewSESSender(ctx context.Context, cfg SESConfig, renderer *Renderer) (*SESSender, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("ses sender: from_email is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg, renderer), nil
}

func newSESSender(client sesAPI, cfg SESConfig, renderer *Renderer) *SESSender {
	return &SESSender{client: client, cfg: cfg, renderer: renderer}
}

func (s *SESSender) from() string {
	if s.cfg.FromName == "" {
		return s.cfg.FromEmail
	}
	return fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
}

// SendInvitation renders and sends the invitation for r.
func (s *SESSender) SendInvitation(ctx context.Context, r *domain.Referral) error {
	msg, err := s.renderer.Render(r)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from()),
		Destination:      &types.Destination{ToAddresses: []string{r.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("referral_id"), Value: aws.String(r.ID)},
		},
	}
	if s.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	logger.Info("invitation sent via SES", "referral_id", r.ID, "email", r.Email, "message_id", messageID)
	return nil
}
