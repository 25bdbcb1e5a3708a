package messaging

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/HealthPipe/internal/metrics"
	"github.com/BTreeMap/HealthPipe/internal/models"
)

// DefaultWorkers is the number of dispatch workers when none is configured.
const DefaultWorkers = 8

// Handler turns one inbound message into exactly one reply.
type Handler interface {
	Handle(ctx context.Context, userID, text string) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, userID, text string) string

func (f HandlerFunc) Handle(ctx context.Context, userID, text string) string {
	return f(ctx, userID, text)
}

// ResponseHandler consumes a Service's inbound messages and replies through it.
// Messages from one user always go to the same worker, so they are handled in arrival
// order; different users are spread across workers and run concurrently.
type ResponseHandler struct {
	msgService Service
	handler    Handler
	workers    int
	queueSize  int
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithWorkers sets the number of dispatch workers.
func WithWorkers(n int) ResponseHandlerOption {
	return func(rh *ResponseHandler) {
		if n > 0 {
			rh.workers = n
		}
	}
}

// NewResponseHandler creates a new ResponseHandler with the given messaging service.
func NewResponseHandler(msgService Service, handler Handler, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService: msgService,
		handler:    handler,
		workers:    DefaultWorkers,
		queueSize:  DefaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse handles one inbound message synchronously and sends the reply.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	if strings.TrimSpace(response.Body) == "" {
		slog.Debug("ResponseHandler ignoring empty message", "from", canonicalFrom)
		return nil
	}

	slog.Debug("ResponseHandler processing response", "from", canonicalFrom, "body_length", len(response.Body))
	reply := rh.handler.Handle(ctx, canonicalFrom, response.Body)
	if reply == "" {
		return nil
	}
	if err := rh.msgService.SendMessage(ctx, canonicalFrom, reply); err != nil {
		metrics.RepliesSent.WithLabelValues(metrics.ResultFailed).Inc()
		slog.Error("ResponseHandler failed to send reply", "error", err, "to", canonicalFrom)
		return fmt.Errorf("send reply: %w", err)
	}
	metrics.RepliesSent.WithLabelValues(metrics.ResultOK).Inc()
	return nil
}

// shard picks the worker for a sender.
func (rh *ResponseHandler) shard(from string) int {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		canonical = from
	}
	h := fnv.New32a()
	h.Write([]byte(canonical))
	return int(h.Sum32() % uint32(rh.workers))
}

// Run dispatches inbound messages until ctx is cancelled or the service closes its
// channels, then waits for queued messages to finish.
func (rh *ResponseHandler) Run(ctx context.Context) error {
	slog.Info("ResponseHandler starting response processing", "workers", rh.workers)
	defer slog.Info("ResponseHandler stopped response processing")

	queues := make([]chan models.Response, rh.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range queues {
		q := make(chan models.Response, rh.queueSize)
		queues[i] = q
		g.Go(func() error {
			for response := range q {
				if err := rh.ProcessResponse(gctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}
			}
			return nil
		})
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		_ = g.Wait()
	}()

	responses := rh.msgService.Responses()
	receipts := rh.msgService.Receipts()
	for {
		select {
		case response, ok := <-responses:
			if !ok {
				slog.Debug("ResponseHandler responses channel closed")
				return nil
			}
			select {
			case queues[rh.shard(response.From)] <- response:
			case <-ctx.Done():
				return nil
			}
		case receipt, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			slog.Debug("ResponseHandler receipt", "to", receipt.To, "status", receipt.Status)
		case <-ctx.Done():
			slog.Debug("ResponseHandler stopping due to context cancellation")
			return nil
		}
	}
}
