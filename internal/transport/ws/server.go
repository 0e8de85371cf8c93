package ws

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wayfinder.ai/internal/observe"
	"wayfinder.ai/internal/protocol"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/world"
)

type Options struct {
	// MaxPending bounds unanswered PATH_REQ messages per session.
	MaxPending int
	// SendQueue is the default outbound buffer when HELLO omits max_queue.
	SendQueue int
	Metrics   *observe.Metrics
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 8
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// session is one connected agent.
type session struct {
	id      string
	agentID string
	out     chan []byte
	pending atomic.Int32
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.opts.Metrics.SessionOpened(ctx)
		defer s.opts.Metrics.SessionClosed(context.Background())
		s.logf("session %s agent %s connected", sess.id, sess.agentID)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "malformed message")
				continue
			}
			if base.Type != protocol.TypePathReq {
				continue
			}
			var req protocol.PathReqMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				s.sendError(ctx, sess, protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if req.ProtocolVersion != protocol.Version {
				s.reject(ctx, sess, req.RequestID, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			s.submit(ctx, sess, req)
		}

		// Cleanup.
		s.logf("session %s agent %s disconnected", sess.id, sess.agentID)
		select {
		case s.world.Leave() <- sess.agentID:
		case <-time.After(time.Second):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil
	}
	if !finite(hello.Position) {
		closeWith(conn, websocket.ClosePolicyViolation, "bad position")
		return nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = s.opts.SendQueue
	}
	if maxQ > 256 {
		maxQ = 256
	}

	respCh := make(chan world.JoinResponse, 1)
	join := world.JoinRequest{
		Spec: world.AgentSpec{
			Name:    hello.AgentName,
			Profile: hello.Profile,
			FloorID: hello.FloorID,
			Pos:     floorgraph.FromArray(hello.Position),
			Tags:    hello.Tags,
		},
		Resp: respCh,
	}
	select {
	case s.world.Join() <- join:
	case <-time.After(2 * time.Second):
		closeWith(conn, websocket.CloseTryAgainLater, "server busy")
		return nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(10 * time.Second):
		closeWith(conn, websocket.CloseTryAgainLater, "join timeout")
		return nil
	}

	cfg := s.world.Config()
	sess := &session{
		id:      uuid.NewString(),
		agentID: resp.AgentID,
		out:     make(chan []byte, maxQ),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		AgentID:         resp.AgentID,
		WorldID:         cfg.ID,
		WorldParams: protocol.WorldParams{
			TickRateHz: cfg.TickRateHz,
			Floors:     s.world.Floors().IDs(),
			Seed:       cfg.Seed,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

// submit forwards a PATH_REQ to the world and answers it asynchronously once
// the tick that evaluates it has run.
func (s *Server) submit(ctx context.Context, sess *session, msg protocol.PathReqMsg) {
	if !finite(msg.Target) || (msg.Position != nil && !finite(*msg.Position)) {
		s.reject(ctx, sess, msg.RequestID, protocol.ErrInvalidTarget, "non-finite coordinate")
		return
	}
	if msg.FloorID != nil && !s.world.Floors().Has(*msg.FloorID) {
		s.reject(ctx, sess, msg.RequestID, protocol.ErrUnknownFloor, "unknown floor")
		return
	}
	if int(sess.pending.Add(1)) > s.opts.MaxPending {
		sess.pending.Add(-1)
		s.reject(ctx, sess, msg.RequestID, protocol.ErrWorldBusy, "too many pending requests")
		return
	}

	req := world.PathRequest{
		AgentID: sess.agentID,
		Target:  world.Target{FloorID: msg.TargetFloor, Centroid: floorgraph.FromArray(msg.Target)},
		FloorID: msg.FloorID,
		Resp:    make(chan world.PathResult, 1),
	}
	if msg.Position != nil {
		p := floorgraph.FromArray(*msg.Position)
		req.Pos = &p
	}

	select {
	case s.world.Requests() <- req:
	default:
		sess.pending.Add(-1)
		s.reject(ctx, sess, msg.RequestID, protocol.ErrWorldBusy, "world queue full")
		return
	}

	go func() {
		defer sess.pending.Add(-1)
		select {
		case <-ctx.Done():
		case res := <-req.Resp:
			s.send(ctx, sess, resultMsg(msg.RequestID, res))
		}
	}()
}

func resultMsg(requestID string, res world.PathResult) protocol.PathResultMsg {
	out := protocol.PathResultMsg{
		Type:            protocol.TypePathResult,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Tick:            res.Tick,
		AgentID:         res.AgentID,
		CacheHit:        res.CacheHit,
	}
	if res.Err != "" {
		out.Status = protocol.StatusRejected
		out.Code = res.Err
		return out
	}
	out.Status = res.Status.String()
	for _, wp := range res.Waypoints {
		out.Waypoints = append(out.Waypoints, protocol.Waypoint{ID: wp.ID, Pos: wp.Pos.Array()})
	}
	return out
}

func (s *Server) reject(ctx context.Context, sess *session, requestID, code, message string) {
	s.send(ctx, sess, protocol.PathResultMsg{
		Type:            protocol.TypePathResult,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		AgentID:         sess.agentID,
		Status:          protocol.StatusRejected,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) sendError(ctx context.Context, sess *session, code, message string) {
	s.send(ctx, sess, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) send(ctx context.Context, sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case sess.out <- b:
	case <-ctx.Done():
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func finite(p [3]float32) bool {
	for _, v := range p {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
