// Package queue consumes Amazon offer-change notifications from SQS.
//
// Messages are long-polled in batches, normalized, and dispatched into the
// engine. The outcome decides the message's fate: terminal outcomes delete
// it, transient failures let the visibility timeout expire so SQS
// redelivers, and malformed or retry-exhausted messages are forwarded to
// the DLQ and deleted.
package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sourcegraph/conc/pool"

	"repricer/internal/config"
	"repricer/internal/normalize"
	"repricer/pkg/types"
)

// API is the slice of the SQS client the consumer uses. Narrowed for
// testing with fakes.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Dispatcher runs one normalized event through the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, oc *types.OfferChange) types.Outcome
}

// NewClient builds the real SQS client from the ambient AWS credential
// chain.
func NewClient(ctx context.Context, cfg config.QueueConfig) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// Consumer long-polls the offer-change queue and feeds the engine.
type Consumer struct {
	client     API
	cfg        config.QueueConfig
	normalizer *normalize.Normalizer
	dispatcher Dispatcher
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer wires a consumer. Start must be called to begin polling.
func NewConsumer(client API, cfg config.QueueConfig, n *normalize.Normalizer, d Dispatcher, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:     client,
		cfg:        cfg,
		normalizer: n,
		dispatcher: d,
		logger:     logger.With("component", "queue"),
	}
}

// Start begins the long-poll loop in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	c.logger.Info("queue consumer started", "url", c.cfg.URL)
}

// Stop halts polling and waits for in-flight messages to finish. Messages
// already received but not yet processed keep running; nothing new is
// pulled.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("queue consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.cfg.URL),
			MaxNumberOfMessages: c.cfg.MaxMessages,
			WaitTimeSeconds:     c.cfg.WaitSeconds,
			VisibilityTimeout:   int32(c.cfg.VisibilityTimeout.Seconds()),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}

		p := pool.New().WithMaxGoroutines(len(out.Messages))
		for _, msg := range out.Messages {
			m := msg
			p.Go(func() { c.handle(ctx, m) })
		}
		p.Wait()
	}
}

// handle runs one message end-to-end and decides ack / redeliver / DLQ.
func (c *Consumer) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	oc, err := c.normalizer.ParseAmazon([]byte(body))
	if err != nil {
		c.logger.Warn("malformed message", "error", err)
		c.toDLQ(ctx, msg, body, "malformed")
		return
	}

	out := c.dispatcher.Dispatch(ctx, oc)
	if out.Terminal() {
		c.delete(ctx, msg)
		return
	}

	if receiveCount(msg) > c.cfg.MaxRetries {
		c.logger.Error("retries exhausted",
			"asin", oc.ProductID, "seller_id", oc.SellerID, "error", out.Err)
		c.toDLQ(ctx, msg, body, "retries-exhausted")
		return
	}
	// Leave the message; visibility expiry redelivers it.
	c.logger.Warn("transient failure, leaving for redelivery",
		"asin", oc.ProductID, "seller_id", oc.SellerID,
		"receive_count", receiveCount(msg), "error", out.Err)
}

func receiveCount(msg sqstypes.Message) int {
	v, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 1
	}
	return n
}

func (c *Consumer) delete(ctx context.Context, msg sqstypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.cfg.URL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// Redelivery of an already-processed message is safe: the pipeline
		// is idempotent per event.
		c.logger.Warn("delete failed", "error", err)
	}
}

// toDLQ forwards the raw body to the dead-letter queue, then deletes the
// original. Without a configured DLQ the message is only deleted.
func (c *Consumer) toDLQ(ctx context.Context, msg sqstypes.Message, body, cause string) {
	if c.cfg.DLQURL != "" {
		_, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(c.cfg.DLQURL),
			MessageBody: aws.String(body),
			MessageAttributes: map[string]sqstypes.MessageAttributeValue{
				"cause": {
					DataType:    aws.String("String"),
					StringValue: aws.String(cause),
				},
			},
		})
		if err != nil {
			c.logger.Error("dlq send failed", "cause", cause, "error", err)
			return // keep the original visible rather than lose it
		}
	}
	c.delete(ctx, msg)
}
