package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

// Server ties the transport hub to sessions, registry, ledger and the
// social channel, and serves the read-only HTTP surface.
type Server struct {
	log      slog.Logger
	cfg      *Config
	sessions *SessionManager
	registry *TableRegistry
	ledger   Ledger
	social   *SocialHub

	upgrader websocket.Upgrader
}

// NewServer wires the core together. The verifier is the identity
// adapter; pass MockVerifier for local runs and tests.
func NewServer(log slog.Logger, cfg *Config, ledger Ledger, verifier IdentityVerifier) *Server {
	if log == nil {
		log = slog.Disabled
	}

	sessions := NewSessionManager(log, verifier, cfg.SessionGrace)
	social := NewSocialHub(log, sessions, cfg.SocialTickHz)
	registry := NewTableRegistry(log, cfg, sessions, ledger, social)

	return &Server{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		ledger:   ledger,
		social:   social,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Registry exposes the table directory.
func (s *Server) Registry() *TableRegistry { return s.registry }

// Sessions exposes the session manager.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Social exposes the social channel hub.
func (s *Server) Social() *SocialHub { return s.social }

// Handler returns the HTTP handler: the websocket endpoint plus the
// read-only surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tables", s.handleTables)
	return mux
}

// Run starts the social flush loop and serves HTTP until the context
// ends.
func (s *Server) Run(ctx context.Context) error {
	go s.social.Run()
	defer s.social.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("listening on :%d", s.cfg.Port)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"tables": len(s.registry.List()),
	})
}

func (s *Server) handleTables(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.List())
}

// wsTransport adapts one websocket connection to the Transport
// interface. Writes are serialised per connection.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(event string, payload interface{}) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// handleWS upgrades the connection and runs its read loop. Client
// messages are decoded here and enqueued onto the owning table's run
// loop; they are never executed on this goroutine's behalf inside the
// table.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade: %v", err)
		return
	}
	transport := &wsTransport{conn: conn}

	defer func() {
		s.sessions.Close(transport)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(transport, CodeInvalidAction, "malformed envelope")
			continue
		}
		s.dispatch(r.Context(), transport, &env)
	}
}

// dispatch routes one client event.
func (s *Server) dispatch(ctx context.Context, transport Transport, env *Envelope) {
	switch env.Event {
	case EventReqJoin:
		s.handleJoin(ctx, transport, env.Payload)
	case EventReqReconnect:
		s.handleReconnect(ctx, transport, env.Payload)
	case EventReqSit:
		s.handleSit(ctx, transport, env.Payload)
	case EventReqReady:
		s.handleReady(transport)
	case EventReqAction:
		s.handleAction(transport, env.Payload)
	case EventReqSocial:
		s.handleSocial(transport, env.Payload)
	case EventReqLeave:
		s.handleLeave(transport)
	default:
		s.sendError(transport, CodeInvalidAction, fmt.Sprintf("unknown event %q", env.Event))
	}
}

func (s *Server) handleJoin(ctx context.Context, transport Transport, raw json.RawMessage) {
	var req ReqJoinPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(transport, CodeInvalidAction, "malformed REQ_JOIN payload")
		return
	}

	sess, err := s.sessions.Open(ctx, transport, req.AuthTicket)
	if err != nil {
		s.sendAuthFailure(transport, err)
		return
	}

	if _, err := s.ledger.FindOrCreate(ctx, sess.PlayerID, sess.Name); err != nil {
		s.log.Errorf("find-or-create %s: %v", sess.PlayerID, err)
		s.sendError(transport, CodeAuthFailed, "account unavailable")
		return
	}

	if err := s.registry.Bind(sess.PlayerID, req.TableID); err != nil {
		s.sendRegistryError(transport, err)
		return
	}
	sess.SetTable(req.TableID)

	sess.Send(EventAuthSuccess, AuthSuccessPayload{
		PlayerID:     sess.PlayerID,
		DisplayName:  sess.Name,
		SessionToken: sess.Token,
		TableID:      req.TableID,
	})
	s.registry.SendSnapshot(req.TableID, sess.PlayerID)
}

func (s *Server) handleReconnect(ctx context.Context, transport Transport, raw json.RawMessage) {
	var req ReqReconnectPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(transport, CodeInvalidAction, "malformed REQ_RECONNECT payload")
		return
	}

	sess, err := s.sessions.Rebind(ctx, transport, req.AuthTicket, req.SessionToken)
	if err != nil {
		s.sendAuthFailure(transport, err)
		return
	}

	tableID := sess.TableID()
	if tableID == "" {
		tableID = req.TableID
		if err := s.registry.Bind(sess.PlayerID, tableID); err != nil {
			s.sendRegistryError(transport, err)
			return
		}
		sess.SetTable(tableID)
	}

	sess.Send(EventAuthSuccess, AuthSuccessPayload{
		PlayerID:     sess.PlayerID,
		DisplayName:  sess.Name,
		SessionToken: sess.Token,
		TableID:      tableID,
	})
	// Replay is a current full snapshot; its sequence is necessarily
	// beyond the client's lastSequenceId.
	s.registry.SendSnapshot(tableID, sess.PlayerID)
}

func (s *Server) handleSit(ctx context.Context, transport Transport, raw json.RawMessage) {
	sess := s.sessions.ByTransport(transport)
	if sess == nil {
		s.sendError(transport, CodeAuthFailed, "not authenticated")
		return
	}
	var req ReqSitPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(transport, CodeInvalidAction, "malformed REQ_SIT payload")
		return
	}

	table := s.registry.TableFor(sess.PlayerID)
	if table == nil {
		s.sendError(transport, CodeTableNotFound, "join a table first")
		return
	}

	buyIn := req.BuyIn
	if buyIn <= 0 {
		buyIn = s.cfg.DefaultBuyIn
	}

	balance, err := s.ledger.Balance(ctx, sess.PlayerID)
	if err != nil || balance < buyIn {
		s.sendError(transport, CodeInsufficientChips, "balance does not cover the buy-in")
		return
	}

	if err := table.Seat(sess.PlayerID, sess.Name, req.SeatIndex, buyIn); err != nil {
		s.sendTableError(transport, err)
		return
	}
}

func (s *Server) handleReady(transport Transport) {
	sess := s.sessions.ByTransport(transport)
	if sess == nil {
		s.sendError(transport, CodeAuthFailed, "not authenticated")
		return
	}
	table := s.registry.TableFor(sess.PlayerID)
	if table == nil {
		s.sendError(transport, CodeTableNotFound, "join a table first")
		return
	}
	if err := table.Ready(sess.PlayerID); err != nil {
		s.sendTableError(transport, err)
	}
}

func (s *Server) handleAction(transport Transport, raw json.RawMessage) {
	sess := s.sessions.ByTransport(transport)
	if sess == nil {
		s.sendError(transport, CodeAuthFailed, "not authenticated")
		return
	}
	var req ReqActionPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(transport, CodeInvalidAction, "malformed REQ_ACTION payload")
		return
	}

	table := s.registry.TableFor(sess.PlayerID)
	if table == nil {
		s.sendError(transport, CodeTableNotFound, "join a table first")
		return
	}

	actionType, err := poker.ParseActionType(req.Type)
	if err != nil {
		s.sendError(transport, CodeInvalidAction, fmt.Sprintf("unknown action %q", req.Type))
		return
	}

	err = table.HandleAction(sess.PlayerID, poker.Action{Type: actionType, Amount: req.Amount})
	if err != nil {
		s.sendTableError(transport, err)
	}
}

func (s *Server) handleSocial(transport Transport, raw json.RawMessage) {
	sess := s.sessions.ByTransport(transport)
	if sess == nil {
		return // social channel stays silent for strangers
	}
	var req ReqSocialPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	tableID := sess.TableID()
	if tableID == "" {
		return
	}
	s.social.Publish(tableID, SocialItem{
		FromID:     sess.PlayerID,
		Type:       req.Type,
		TargetSeat: req.TargetSeat,
	}, s.registry.recipients(tableID))
}

func (s *Server) handleLeave(transport Transport) {
	sess := s.sessions.ByTransport(transport)
	if sess == nil {
		return
	}
	if table := s.registry.TableFor(sess.PlayerID); table != nil {
		_ = table.Unseat(sess.PlayerID)
	}
	s.registry.Unbind(sess.PlayerID)
	s.social.Drop(sess.PlayerID)
	sess.SetTable("")
	s.sessions.Destroy(sess.PlayerID)
}

// ---- error mapping ----

func (s *Server) sendError(transport Transport, code, message string) {
	_ = transport.Send(EventError, ErrorPayload{Code: code, Message: message})
}

func (s *Server) sendAuthFailure(transport Transport, err error) {
	code := CodeAuthFailed
	switch {
	case errors.Is(err, ErrInvalidTicket):
		code = CodeInvalidTicket
	case errors.Is(err, ErrSessionExpired):
		code = CodeAuthFailed
	}
	_ = transport.Send(EventAuthFailure, AuthFailurePayload{Code: code, Message: err.Error()})
}

func (s *Server) sendRegistryError(transport Transport, err error) {
	switch {
	case errors.Is(err, ErrTableNotFound):
		s.sendError(transport, CodeTableNotFound, err.Error())
	case errors.Is(err, ErrAlreadyInTable):
		s.sendError(transport, CodeAlreadyInTable, err.Error())
	default:
		s.sendError(transport, CodeInvalidAction, err.Error())
	}
}

// sendTableError converts a table-layer protocol error into its stable
// wire code; the offending client is the only recipient.
func (s *Server) sendTableError(transport Transport, err error) {
	code := CodeInvalidAction
	switch {
	case errors.Is(err, poker.ErrSeatOccupied):
		code = CodeSeatTaken
	case errors.Is(err, poker.ErrTableFull):
		code = CodeTableFull
	case errors.Is(err, poker.ErrAlreadySeated):
		code = CodeAlreadyInTable
	case errors.Is(err, poker.ErrNotYourTurn):
		code = CodeNotYourTurn
	case errors.Is(err, ErrInsufficientChips):
		code = CodeInsufficientChips
	}
	s.sendError(transport, code, err.Error())
}
