package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"wayfinder.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "agent name")
		profile  = flag.String("profile", "", "agent profile id")
		floor    = flag.Int("floor", 0, "starting floor")
		tags     = flag.String("tags", "", "comma-separated access tags")
		spread   = flag.Float64("spread", 8, "targets are drawn from [0,spread) on x and z")
		interval = flag.Duration("interval", 2*time.Second, "delay between path requests")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Profile:         *profile,
		FloorID:         *floor,
		Tags:            splitTags(*tags),
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := &bot{
		conn:   conn,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		spread: float32(*spread),
		floor:  *floor,
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME agent_id=%s session=%s floors=%v tick_rate=%d", w.AgentID, w.SessionID, w.WorldParams.Floors, w.WorldParams.TickRateHz)
			b.floors = w.WorldParams.Floors
			b.request()

		case protocol.TypePathResult:
			var res protocol.PathResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			b.handleResult(&res)
			time.Sleep(*interval)
			b.request()

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)
			}
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	rng    *rand.Rand
	spread float32

	floors []int
	floor  int
	pos    *[3]float32
	seq    int
}

// request asks for a path to a random point on a random floor, starting from
// the end of the previous path when there is one.
func (b *bot) request() {
	if len(b.floors) == 0 {
		return
	}
	b.seq++
	target := b.floors[b.rng.Intn(len(b.floors))]
	req := protocol.PathReqMsg{
		Type:            protocol.TypePathReq,
		ProtocolVersion: protocol.Version,
		RequestID:       fmt.Sprintf("R%d", b.seq),
		TargetFloor:     target,
		Target:          [3]float32{b.rng.Float32() * b.spread, 0, b.rng.Float32() * b.spread},
	}
	if b.pos != nil {
		f := b.floor
		req.FloorID = &f
		req.Position = b.pos
	}
	if err := b.conn.WriteJSON(req); err != nil {
		b.logger.Printf("send PATH_REQ: %v", err)
	}
}

func (b *bot) handleResult(res *protocol.PathResultMsg) {
	if res.Status != "FOUND" {
		b.logger.Printf("PATH_RESULT %s tick=%d status=%s code=%s", res.RequestID, res.Tick, res.Status, res.Code)
		return
	}
	b.logger.Printf("PATH_RESULT %s tick=%d waypoints=%d cache_hit=%v", res.RequestID, res.Tick, len(res.Waypoints), res.CacheHit)
	if n := len(res.Waypoints); n > 0 {
		// The last waypoint is on the current floor: cross-floor requests end
		// at an exit surface.
		end := res.Waypoints[n-1].Pos
		b.pos = &end
	}
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
