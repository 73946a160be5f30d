// Package ingress subscribes to device topics and feeds decoded messages to
// the irrigation service, keeping per-device arrival order.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/metrics"
	"github.com/autopeer-io/plantd/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/plantd/pkg/log"
	pkgmqtt "github.com/autopeer-io/plantd/pkg/mqtt"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

// Decoder turns a raw transport message into a typed inbound message.
type Decoder interface {
	Decode(topic string, payload []byte) (model.Inbound, error)
}

// Handler processes one decoded message.
type Handler interface {
	Handle(ctx context.Context, msg model.Inbound) error
}

type Config struct {
	// SharedGroup enables shared subscriptions when set.
	SharedGroup string
	QoS         int
	Workers     int
	QueueSize   int
}

// Server implements the transport ingress layer.
type Server struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	decoder Decoder
	handler Handler
	cfg     Config
	pool    *keyedPool
	logger  log.Logger
	metrics *metrics.Metrics
}

// NewServer creates an ingress server over an unstarted client.
func NewServer(client pkgmqtt.Client, topics *topic.Builder, decoder Decoder, handler Handler,
	cfg Config, logger log.Logger, m *metrics.Metrics) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = log.WithName("ingress")
	}
	return &Server{
		client:  client,
		topics:  topics,
		decoder: decoder,
		handler: handler,
		cfg:     cfg,
		pool:    newKeyedPool(cfg.Workers, cfg.QueueSize, logger),
		logger:  logger,
		metrics: m,
	}
}

// Start connects to the broker and subscribes to the inbound segments. Failing
// to reach the broker before ctx ends is fatal.
func (s *Server) Start(ctx context.Context) error {
	s.pool.Start(ctx)
	defer s.pool.Stop()

	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	s.logger.Info("Waiting for transport connection")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("await transport connection: %w", err)
	}

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.logger.Info("Ingress stopping")
	return nil
}

func (s *Server) subscribe(ctx context.Context) error {
	shared := s.topics.Shared(s.cfg.SharedGroup)
	for _, segment := range paths.Inbound {
		filter := shared.BuildWildcard(segment)
		if err := s.client.Subscribe(ctx, filter, s.cfg.QoS, s.enqueue); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
		}
	}
	return nil
}

// enqueue runs on the transport receive path and must not block.
func (s *Server) enqueue(_ context.Context, topicName string, payload []byte) {
	key, _, ok := s.topics.Parse(topicName)
	if !ok {
		key = topicName
	}

	accepted := s.pool.Submit(key, func(ctx context.Context) {
		s.process(ctx, topicName, payload)
	})
	if !accepted {
		s.metrics.IncIngressDropped()
		s.logger.Warn("Ingress queue full, dropping message", "device", key, "topic", topicName)
	}
}

func (s *Server) process(ctx context.Context, topicName string, payload []byte) {
	msg, err := s.decoder.Decode(topicName, payload)
	if err != nil {
		_, segment, _ := s.topics.Parse(topicName)
		result := "error"
		if errors.Is(err, core.ErrMalformedMessage) {
			result = "malformed"
		}
		s.metrics.ObserveMessage(segment, result)
		s.logger.Warn("Rejected device message", "topic", topicName, "error", err)
		return
	}

	// The handler logs its own failures.
	_ = s.handler.Handle(ctx, msg)
}
