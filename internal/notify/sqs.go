package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dshills/gocommerce/pkg/types"
)

// SQSAPI is the subset of the SQS client used by SQSSender
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ConfirmationMessage is the JSON body published to the queue
type ConfirmationMessage struct {
	Type    string           `json:"type"`
	To      string           `json:"to"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Order   *types.OrderView `json:"order"`
}

// SQSSender publishes confirmations to an SQS queue for an external mailer
type SQSSender struct {
	client   SQSAPI
	queueURL string
}

// NewSQSSender creates a sender from an existing client
func NewSQSSender(client SQSAPI, queueURL string) *SQSSender {
	return &SQSSender{client: client, queueURL: queueURL}
}

// NewSQSSenderFromEnv loads AWS credentials from the default chain
func NewSQSSenderFromEnv(ctx context.Context, queueURL, region string) (*SQSSender, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSQSSender(sqs.NewFromConfig(cfg), queueURL), nil
}

// SendOrderConfirmation implements Sender
func (s *SQSSender) SendOrderConfirmation(ctx context.Context, order *types.OrderView, email string) error {
	msg, err := RenderConfirmation(order, email)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ConfirmationMessage{
		Type:    "order_confirmation",
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
		Order:   order,
	})
	if err != nil {
		return fmt.Errorf("failed to encode confirmation: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	}
	// FIFO queues deduplicate by order reference
	if strings.HasSuffix(s.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(fmt.Sprintf("user-%d", order.UserID))
		input.MessageDeduplicationId = aws.String(order.Reference)
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to publish confirmation for order %d: %w", order.ID, err)
	}
	return nil
}
