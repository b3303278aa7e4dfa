package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
)

// Service is the viewer gateway: websocket push, poll fallback and broker consumer.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	drawsHandler      *DrawsHandler
	eventConsumer     *EventConsumer
	reader            DrawReader
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(ctx context.Context, config Config, reader DrawReader, clock clockwork.Clock) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig, clock)

	consumer, err := NewEventConsumer(ctx, cm, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		drawsHandler:      NewDrawsHandler(reader, cm),
		eventConsumer:     consumer,
		reader:            reader,
	}, nil
}

// Start seeds the replay cache from the database, then runs until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting draw gateway service")

	if latest, err := s.reader.LatestWinner(ctx); err != nil {
		log.Warn().Err(err).Msg("could not seed latest draw")
	} else if latest != nil {
		s.connectionManager.Seed(events.NewDrawCompleted(latest, nil))
	}

	go s.connectionManager.Start(ctx)
	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("draw gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("draw gateway service stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	RegisterRoutes(mux, s.wsHandler, s.drawsHandler)
	log.Info().Msg("draw gateway routes registered")
}

// RegisterRoutes mounts the viewer endpoints.
func RegisterRoutes(mux *http.ServeMux, ws *WebSocketHandler, draws *DrawsHandler) {
	mux.HandleFunc("GET /ws/draws", ws.HandleDrawConnection)
	mux.HandleFunc("GET /ws/stats", ws.HandleConnectionStats)
	mux.HandleFunc("GET /api/draws/since", draws.HandleSince)
	mux.HandleFunc("GET /api/draws/latest", draws.HandleLatest)
}
