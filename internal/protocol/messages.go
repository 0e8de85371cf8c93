package protocol

// HELLO (client -> server): registers an agent in the building.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentName       string     `json:"agent_name"`
	Profile         string     `json:"profile,omitempty"`
	FloorID         int        `json:"floor_id"`
	Position        [3]float32 `json:"position"`
	Tags            []string   `json:"tags,omitempty"`
	MaxQueue        int        `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AgentID         string      `json:"agent_id"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	Floors     []int `json:"floors"`
	Seed       int64 `json:"seed"`
}

// PATH_REQ (client -> server). Position and FloorID, when present, move the
// agent before the request is evaluated.
type PathReqMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RequestID       string      `json:"request_id"`
	TargetFloor     int         `json:"target_floor"`
	Target          [3]float32  `json:"target"`
	FloorID         *int        `json:"floor_id,omitempty"`
	Position        *[3]float32 `json:"position,omitempty"`
}

type Waypoint struct {
	ID  int        `json:"id"`
	Pos [3]float32 `json:"pos"`
}

// PATH_RESULT (server -> client), sent after the tick that evaluated the request.
type PathResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id"`
	Tick            uint64     `json:"tick"`
	AgentID         string     `json:"agent_id"`
	Status          string     `json:"status"`
	CacheHit        bool       `json:"cache_hit,omitempty"`
	Waypoints       []Waypoint `json:"waypoints,omitempty"`
	Code            string     `json:"code,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// SUBSCRIBE (observer -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// TICK (server -> observer): per-tick pathfinding summary.
type TickMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	WorldID         string  `json:"world_id"`
	Tick            uint64  `json:"tick"`
	Agents          int     `json:"agents"`
	Requests        int     `json:"requests"`
	Found           int     `json:"found"`
	NoDestination   int     `json:"no_destination"`
	NoPath          int     `json:"no_path"`
	CacheHits       int     `json:"cache_hits"`
	Solves          int     `json:"solves"`
	CacheEntries    int     `json:"cache_entries"`
	StepMS          float64 `json:"step_ms"`
	Digest          string  `json:"digest"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
