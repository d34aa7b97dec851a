package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/publisher"
)

// Subscriber tails event streams.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(publisher.Message), streams ...string) error
}

// Topic names accepted in ?topics= and sent as the envelope type.
const (
	TopicGames     = "games"
	TopicStandings = "standings"
)

var streamTopics = map[string]string{
	publisher.StreamGameFinal:        TopicGames,
	publisher.StreamStandingsUpdated: TopicStandings,
}

const resubscribeDelay = 2 * time.Second

// Envelope is the frame pushed to clients.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Server upgrades HTTP connections and forwards stream events to them.
type Server struct {
	hub      *Hub
	sub      Subscriber
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewServer creates a new WebSocket server. An empty origins list or "*" accepts
// any origin.
func NewServer(sub Subscriber, origins []string, logger *logging.Logger) *Server {
	logger = logger.Named("websocket")
	return &Server{
		hub: NewHub(logger),
		sub: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger,
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Run starts the hub and the stream subscription. It blocks until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	if s.sub == nil {
		<-ctx.Done()
		return
	}

	streams := make([]string, 0, len(streamTopics))
	for stream := range streamTopics {
		streams = append(streams, stream)
	}

	for {
		err := s.sub.Subscribe(ctx, s.Forward, streams...)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream subscription ended, retrying", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// Forward wraps one stream message in an Envelope and broadcasts it.
func (s *Server) Forward(msg publisher.Message) {
	topic, ok := streamTopics[msg.Stream]
	if !ok {
		return
	}

	frame, err := sonic.Marshal(Envelope{Type: topic, ID: msg.ID, Data: msg.Data})
	if err != nil {
		s.logger.Warn("encode websocket frame failed", "stream", msg.Stream, "error", err)
		return
	}
	s.hub.Broadcast(topic, frame)
}

// ServeHTTP upgrades the connection. ?topics=games,standings narrows the feed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: parseTopics(r.URL.Query().Get("topics")),
		remote: r.RemoteAddr,
	}
	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// HandleHealth reports the number of connected clients.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == TopicGames || t == TopicStandings {
			topics[t] = struct{}{}
		}
	}
	return topics
}
