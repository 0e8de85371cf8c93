package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Name   string
	Limit  int
	Floor  int
	Status string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	floor := fs.Int("floor", -1, "floor filter (paths)")
	status := fs.String("status", "", "status filter (outcomes): FOUND|NO_DESTINATION|NO_PATH")
	_ = fs.Parse(args)

	q := dbQuery{Name: "snapshots", Limit: *limit, Floor: *floor, Status: strings.ToUpper(strings.TrimSpace(*status))}
	if fs.NArg() > 0 {
		q.Name = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] snapshots|ticks|outcomes|paths|floors|configs")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row.
func runQuery(db *sql.DB, q dbQuery, out io.Writer) error {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	switch q.Name {
	case "snapshots":
		return eachRow(db, out, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				RunID     string `json:"run_id"`
				Seed      int64  `json:"seed"`
				Agents    int    `json:"agents"`
				Paths     int    `json:"paths"`
				RandDraws int64  `json:"rand_draws"`
			}
			err := rows.Scan(&r.Tick, &r.Path, &r.RunID, &r.Seed, &r.Agents, &r.Paths, &r.RandDraws)
			return r, err
		}, `SELECT tick,path,run_id,seed,agents,paths,rand_draws FROM snapshots ORDER BY tick DESC LIMIT ?`, q.Limit)

	case "ticks":
		return eachRow(db, out, func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick     int64  `json:"tick"`
				Digest   string `json:"digest"`
				Joins    int    `json:"joins"`
				Leaves   int    `json:"leaves"`
				Requests int    `json:"requests"`
				Outcomes int    `json:"outcomes"`
			}
			err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Requests, &r.Outcomes)
			return r, err
		}, `SELECT tick,digest,joins,leaves,requests,outcomes FROM ticks ORDER BY tick DESC LIMIT ?`, q.Limit)

	case "outcomes":
		scan := func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick      int64  `json:"tick"`
				AgentID   string `json:"agent_id"`
				Status    string `json:"status"`
				CacheHit  bool   `json:"cache_hit"`
				Waypoints int    `json:"waypoints"`
			}
			err := rows.Scan(&r.Tick, &r.AgentID, &r.Status, &r.CacheHit, &r.Waypoints)
			return r, err
		}
		if q.Status != "" {
			return eachRow(db, out, scan, `SELECT tick,agent_id,status,cache_hit,waypoints FROM outcomes WHERE status=? ORDER BY tick DESC, agent_id LIMIT ?`, q.Status, q.Limit)
		}
		return eachRow(db, out, scan, `SELECT tick,agent_id,status,cache_hit,waypoints FROM outcomes ORDER BY tick DESC, agent_id LIMIT ?`, q.Limit)

	case "paths":
		scan := func(rows *sql.Rows) (any, error) {
			var r struct {
				Tick      int64           `json:"tick"`
				Seq       int64           `json:"seq"`
				FloorID   int             `json:"floor_id"`
				Start     json.RawMessage `json:"start"`
				End       json.RawMessage `json:"end"`
				Waypoints int             `json:"waypoints"`
				Tags      string          `json:"tags,omitempty"`
			}
			var start, end string
			err := rows.Scan(&r.Tick, &r.Seq, &r.FloorID, &start, &end, &r.Waypoints, &r.Tags)
			r.Start, r.End = json.RawMessage(start), json.RawMessage(end)
			return r, err
		}
		if q.Floor >= 0 {
			return eachRow(db, out, scan, `SELECT tick,seq,floor_id,start_json,end_json,waypoints,tags FROM paths WHERE floor_id=? ORDER BY id DESC LIMIT ?`, q.Floor, q.Limit)
		}
		return eachRow(db, out, scan, `SELECT tick,seq,floor_id,start_json,end_json,waypoints,tags FROM paths ORDER BY id DESC LIMIT ?`, q.Limit)

	case "floors":
		return eachRow(db, out, func(rows *sql.Rows) (any, error) {
			var r struct {
				FloorID int `json:"floor_id"`
				Paths   int `json:"paths"`
			}
			err := rows.Scan(&r.FloorID, &r.Paths)
			return r, err
		}, `SELECT floor_id,COUNT(*) FROM paths GROUP BY floor_id ORDER BY floor_id`)

	case "configs":
		return eachRow(db, out, func(rows *sql.Rows) (any, error) {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt)
			return r, err
		}, `SELECT name,digest,updated_at FROM configs ORDER BY name`)

	default:
		return fmt.Errorf("unknown query: %s", q.Name)
	}
}

func eachRow(db *sql.DB, out io.Writer, scan func(*sql.Rows) (any, error), query string, args ...any) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		printJSON(out, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
