package syncserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/livesync"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	outboxSize     = 16

	// closeSessionEnded tells the client to log out
	closeSessionEnded = 4001
)

// Subscriber opens live streams
type Subscriber interface {
	SubscribeAccount(ctx context.Context, email string) *livesync.Subscription
	SubscribeOrders(ctx context.Context, scope entities.OrderScope) *livesync.Subscription
	SubscribeCatalog(ctx context.Context) *livesync.Subscription
	SubscribeConfig(ctx context.Context) *livesync.Subscription
}

// SessionChecker reloads the account behind a token
type SessionChecker interface {
	CheckSession(ctx context.Context, email string) (*entities.Account, error)
}

// Request is a client frame
type Request struct {
	Action string         `json:"action"` // subscribe or unsubscribe
	Topic  livesync.Topic `json:"topic"`
}

// Server streams live snapshots over websockets and serves /metrics
type Server struct {
	hub      Subscriber
	tokens   jwt.JWTService
	sessions SessionChecker
	metrics  *metrics.Metrics
	log      *logging.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a live sync server
func NewServer(hub Subscriber, tokens jwt.JWTService, sessions SessionChecker, m *metrics.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:      ctx,
		cancel:   cancel,
		hub:      hub,
		tokens:   tokens,
		sessions: sessions,
		metrics:  m,
		log:      log.Component("syncserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes /ws, /metrics and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Close ends every open connection and waits for them to be torn down
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	account, err := s.authenticate(r)
	if err != nil {
		s.log.WithError(err).Debug("rejected live sync connection")
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	c := newConnection(s, ws, account)
	c.log.Info("live sync connected")
	c.run(s.ctx)
	c.log.Info("live sync disconnected")
}

func (s *Server) authenticate(r *http.Request) (*entities.Account, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return nil, errors.New("missing token")
	}

	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return s.sessions.CheckSession(r.Context(), claims.Email)
}

type connection struct {
	server *Server
	ws     *websocket.Conn
	email  string
	scope  entities.OrderScope // fixed for the life of the connection
	log    *logging.Logger

	out  chan livesync.Update
	subs map[livesync.Topic]*livesync.Subscription
}

func newConnection(s *Server, ws *websocket.Conn, account *entities.Account) *connection {
	return &connection{
		server: s,
		ws:     ws,
		email:  account.Email,
		scope:  entities.ScopeFor(account),
		log:    s.log.With(logrus.Fields{"email": account.Email}),
		out:    make(chan livesync.Update, outboxSize),
		subs:   make(map[livesync.Topic]*livesync.Subscription),
	}
}

// run reads client frames until the connection drops. One goroutine writes,
// one forwarder per subscription feeds it and a session watch ends the
// connection when the account is blocked, deleted or changes role.
func (c *connection) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writeLoop(ctx)
	}()

	session := c.server.hub.SubscribeAccount(ctx, c.email)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		c.watchSession(ctx, session)
	}()

	c.readLoop(ctx)
	cancel()

	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	session.Unsubscribe()
	<-watchDone
	<-writerDone
	c.ws.Close()
}

// watchSession follows the connection's own account whether or not the
// client subscribed to it
func (c *connection) watchSession(ctx context.Context, session *livesync.Subscription) {
	for update := range session.C {
		if update.Terminated {
			c.reply(ctx, update)
			return
		}
		account, ok := update.Data.(*entities.Account)
		if !ok {
			continue
		}
		if entities.ScopeFor(account) != c.scope {
			c.reply(ctx, scopeChanged())
			return
		}
	}
}

// verify reloads the account before an orders snapshot leaves the server, so
// a role change that raced the session watch never widens what is sent
func (c *connection) verify(ctx context.Context) (livesync.Update, bool) {
	account, err := c.server.sessions.CheckSession(ctx, c.email)
	if err != nil {
		switch code := types.CodeOf(err); code {
		case types.ErrAccountBlocked, types.ErrAccountNotFound:
			return livesync.Update{Topic: livesync.TopicAccount, Code: string(code), Error: "Session ended", Terminated: true}, false
		default:
			c.log.WithError(err).Warn("failed to recheck session")
			return livesync.Update{}, false
		}
	}
	if entities.ScopeFor(account) != c.scope {
		return scopeChanged(), false
	}
	return livesync.Update{}, true
}

func scopeChanged() livesync.Update {
	return livesync.Update{
		Topic:      livesync.TopicAccount,
		Code:       string(types.ErrPermissionDenied),
		Error:      "Account permissions changed, sign in again",
		Terminated: true,
	}
}

func (c *connection) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, closeSessionEnded) && ctx.Err() == nil {
				c.log.WithError(err).Debug("live sync read failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, req)
	}
}

func (c *connection) handle(ctx context.Context, req Request) {
	if !req.Topic.Valid() {
		c.reply(ctx, livesync.Update{Topic: req.Topic, Code: string(types.ErrValidation), Error: "unknown topic"})
		return
	}

	switch req.Action {
	case "subscribe":
		if _, ok := c.subs[req.Topic]; ok {
			return
		}
		sub := c.subscribe(ctx, req.Topic)
		c.subs[req.Topic] = sub
		go c.forward(ctx, sub)
	case "unsubscribe":
		if sub, ok := c.subs[req.Topic]; ok {
			sub.Unsubscribe()
			delete(c.subs, req.Topic)
		}
	default:
		c.reply(ctx, livesync.Update{Topic: req.Topic, Code: string(types.ErrValidation), Error: "unknown action"})
	}
}

// subscribe derives every scope from the authenticated account
func (c *connection) subscribe(ctx context.Context, topic livesync.Topic) *livesync.Subscription {
	switch topic {
	case livesync.TopicAccount:
		return c.server.hub.SubscribeAccount(ctx, c.email)
	case livesync.TopicOrders:
		return c.server.hub.SubscribeOrders(ctx, c.scope)
	case livesync.TopicCatalog:
		return c.server.hub.SubscribeCatalog(ctx)
	default:
		return c.server.hub.SubscribeConfig(ctx)
	}
}

func (c *connection) forward(ctx context.Context, sub *livesync.Subscription) {
	for update := range sub.C {
		if sub.Topic() == livesync.TopicOrders && update.Data != nil {
			if ended, ok := c.verify(ctx); !ok {
				if ended.Terminated {
					c.reply(ctx, ended)
					return
				}
				continue
			}
		}
		if !c.reply(ctx, update) {
			return
		}
	}
}

func (c *connection) reply(ctx context.Context, update livesync.Update) bool {
	select {
	case c.out <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case update := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(update); err != nil {
				c.log.WithError(err).Debug("live sync write failed")
				return
			}
			if update.Terminated {
				c.log.WithFields(logrus.Fields{"code": update.Code}).Info("live sync session ended")
				c.close(closeSessionEnded, update.Error)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			c.close(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (c *connection) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	// Unblock the reader
	_ = c.ws.SetReadDeadline(time.Now())
}
