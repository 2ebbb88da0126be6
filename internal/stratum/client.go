// Package stratum implements a Stratum v1 JSON-RPC client for VerusHash
// mining pools: subscribe/authorize/notify/set_target/set_difficulty/submit,
// modeled on Dirbaio-gominer's Stratum client and dilithium-miner's
// pool_worker.go connection loop.
package stratum

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	json "github.com/goccy/go-json"

	"github.com/verus-community/verusminer/internal/job"
	"github.com/verus-community/verusminer/internal/minerlog"
	"github.com/verus-community/verusminer/internal/target"
)

// maxLineLength bounds one JSON-RPC line the way stratum_client.cpp's
// receive_line does, to keep a hostile or broken pool from exhausting
// memory on an unterminated line.
const maxLineLength = 64 * 1024

// State is the client's connection lifecycle stage.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateAuthorized
	StateMining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateAuthorized:
		return "authorized"
	case StateMining:
		return "mining"
	default:
		return "unknown"
	}
}

// ErrKind classifies a client error for the caller's recovery policy.
type ErrKind int

const (
	ErrCapabilityMissing ErrKind = iota
	ErrConnectionLost
	ErrProtocolViolation
	ErrAuthRejected
	ErrShareRejected
	ErrStaleShare
	ErrJobInvalid
)

// Error wraps a classified Stratum failure.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Config carries the connection parameters for one pool.
type Config struct {
	Host     string
	Port     uint16
	Username string
	Password string
	Agent    string

	DialTimeout  time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is a Stratum v1 mining client. One Client serves one pool
// connection; the caller reconnects by constructing a new Client.
type Client struct {
	cfg Config
	log minerlog.Logger

	mu    sync.Mutex
	conn  net.Conn
	state State

	extranonce1     []byte
	extranonce2Size int
	difficulty      float64
	poolTarget      *target.Target

	msgID uint64

	Jobs   chan *job.Job
	Errors chan *Error

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse

	shareAccepted uint64
	shareRejected uint64
}

type rpcRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// New creates a Client. Call Run to connect and start processing.
func New(cfg Config, log minerlog.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:             cfg,
		log:             log,
		extranonce2Size: 4,
		difficulty:      1.0,
		msgID:           1,
		Jobs:            make(chan *job.Job, 4),
		Errors:          make(chan *Error, 4),
		pending:         make(map[uint64]chan rpcResponse),
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExtraNonce1 returns the pool-assigned nonce prefix from mining.subscribe.
func (c *Client) ExtraNonce1() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.extranonce1))
	copy(out, c.extranonce1)
	return out
}

// Run dials the pool, subscribes and authorizes, then reads notifications
// until the connection drops or ctx-equivalent stop is requested via
// Close. On a connection loss it reports ErrConnectionLost on Errors and
// returns; the caller (cmd/verusminer's runWithReconnect) is responsible
// for backoff and reconnecting by calling Run again on a fresh Client.
func (c *Client) Run() error {
	c.setState(StateConnecting)

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, c.cfg.DialTimeout)
	if err != nil {
		c.reportErr(ErrConnectionLost, fmt.Sprintf("dial %s: %v", addr, err))
		return err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Infof("connected to %s", addr)

	// Replies to subscribe and authorize are routed by the read loop, so it
	// has to be running before the first request goes out.
	readDone := make(chan error, 1)
	go func() { readDone <- c.readLoop() }()

	if err := c.subscribe(); err != nil {
		c.reportErr(ErrProtocolViolation, err.Error())
		c.Close()
		return err
	}
	c.setState(StateSubscribed)

	if err := c.authorize(); err != nil {
		c.reportErr(ErrAuthRejected, err.Error())
		c.Close()
		return err
	}
	c.mu.Lock()
	if c.state != StateMining {
		c.state = StateAuthorized
	}
	c.mu.Unlock()

	return <-readDone
}

// Close tears down the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.state = StateDisconnected
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.msgID, 1)
}

func (c *Client) send(method string, params []interface{}) (uint64, error) {
	id := c.nextID()
	req := rpcRequest{ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	line = append(line, '\n')

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, &Error{Kind: ErrConnectionLost, Msg: "not connected"}
	}

	c.log.Tracef("-> %s", spew.Sdump(req))
	_, err = conn.Write(line)
	return id, err
}

func (c *Client) subscribe() error {
	agent := c.cfg.Agent
	if agent == "" {
		agent = "verusminer/1.0.0"
	}
	id, err := c.send("mining.subscribe", []interface{}{agent})
	if err != nil {
		return err
	}
	resp, err := c.awaitResponse(id, 15*time.Second)
	if err != nil {
		return err
	}
	var result []interface{}
	if err := json.Unmarshal(resp.Result, &result); err != nil || len(result) < 2 {
		return fmt.Errorf("stratum: malformed subscribe result")
	}
	xn1, ok := result[1].(string)
	if !ok {
		return fmt.Errorf("stratum: subscribe result missing extranonce1")
	}
	extranonce1, err := decodeHexField(xn1)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.extranonce1 = extranonce1
	if len(result) > 2 {
		if size, ok := result[2].(float64); ok {
			c.extranonce2Size = int(size)
		}
	}
	c.mu.Unlock()

	return nil
}

func (c *Client) authorize() error {
	id, err := c.send("mining.authorize", []interface{}{c.cfg.Username, c.cfg.Password})
	if err != nil {
		return err
	}
	resp, err := c.awaitResponse(id, 15*time.Second)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(resp.Result, &ok); err == nil && ok {
		return nil
	}
	if len(resp.Error) == 0 || string(resp.Error) == "null" {
		return nil
	}
	return fmt.Errorf("stratum: authorization rejected: %s", string(resp.Error))
}

// Submit sends a mining.submit for one accepted nonce and returns once the
// pool has responded accept/reject.
func (c *Client) Submit(username string, sub job.Submission) error {
	id, err := c.send("mining.submit", []interface{}{username, sub.JobID, sub.NTime, sub.NonceStr, sub.SolHex})
	if err != nil {
		return err
	}
	resp, err := c.awaitResponse(id, 30*time.Second)
	if err != nil {
		return err
	}
	var ok bool
	_ = json.Unmarshal(resp.Result, &ok)
	if ok {
		atomic.AddUint64(&c.shareAccepted, 1)
		return nil
	}
	atomic.AddUint64(&c.shareRejected, 1)
	msg := string(resp.Error)
	kind := ErrShareRejected
	if containsStale(msg) {
		kind = ErrStaleShare
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf("share rejected: %s", msg)}
}

func containsStale(s string) bool {
	for _, needle := range []string{"stale", "Stale", "job not found", "Job not found"} {
		if len(s) >= len(needle) && indexOf(s, needle) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// Stats reports cumulative accept/reject counters for the stats API.
func (c *Client) Stats() (accepted, rejected uint64) {
	return atomic.LoadUint64(&c.shareAccepted), atomic.LoadUint64(&c.shareRejected)
}

func (c *Client) awaitResponse(id uint64, timeout time.Duration) (rpcResponse, error) {
	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return rpcResponse{}, &Error{Kind: ErrConnectionLost, Msg: "timed out waiting for pool response"}
	}
}

func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineLength)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.log.Tracef("<- %s", string(line))
		c.dispatch(line)
	}

	err := scanner.Err()
	kind := ErrConnectionLost
	if err == nil {
		err = fmt.Errorf("stratum: connection closed by pool")
	} else if err == bufio.ErrTooLong {
		kind = ErrProtocolViolation
	}
	c.reportErr(kind, err.Error())
	c.Close()
	return err
}

func (c *Client) dispatch(line []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		c.reportErr(ErrProtocolViolation, fmt.Sprintf("malformed json: %v", err))
		return
	}

	if resp.Method != "" {
		c.handleNotification(resp.Method, resp.Params)
		return
	}
	if resp.ID != nil {
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) handleNotification(method string, raw json.RawMessage) {
	switch method {
	case "mining.notify":
		var params []interface{}
		if err := json.Unmarshal(raw, &params); err != nil {
			c.reportErr(ErrJobInvalid, err.Error())
			return
		}
		c.mu.Lock()
		xn1 := c.extranonce1
		diff := c.difficulty
		poolTarget := c.poolTarget
		c.mu.Unlock()

		j, err := job.ParseNotify(params, xn1, diff)
		if err != nil {
			c.reportErr(ErrJobInvalid, err.Error())
			return
		}
		if poolTarget != nil {
			j.Target = *poolTarget
		} else {
			j.Target = target.FromDifficulty(diff)
		}
		c.setState(StateMining)
		c.Jobs <- j

	case "mining.set_difficulty":
		var params []float64
		if err := json.Unmarshal(raw, &params); err == nil && len(params) > 0 {
			c.mu.Lock()
			c.difficulty = params[0]
			c.poolTarget = nil
			c.mu.Unlock()
			c.log.Infof("difficulty set to %v", params[0])
		}

	case "mining.set_target":
		var params []string
		if err := json.Unmarshal(raw, &params); err == nil && len(params) > 0 {
			t, err := target.FromSetTargetHex(params[0])
			if err != nil {
				c.reportErr(ErrProtocolViolation, err.Error())
				return
			}
			c.mu.Lock()
			c.poolTarget = &t
			c.difficulty = t.Difficulty()
			c.mu.Unlock()
			c.log.Infof("target set (difficulty ~%.4f)", t.Difficulty())
		}

	case "mining.set_extranonce":
		var params []interface{}
		if err := json.Unmarshal(raw, &params); err == nil && len(params) > 0 {
			if xn1, ok := params[0].(string); ok {
				if b, err := decodeHexField(xn1); err == nil {
					c.mu.Lock()
					c.extranonce1 = b
					if len(params) > 1 {
						if size, ok := params[1].(float64); ok {
							c.extranonce2Size = int(size)
						}
					}
					c.mu.Unlock()
				}
			}
		}
	}
}

func (c *Client) reportErr(kind ErrKind, msg string) {
	select {
	case c.Errors <- &Error{Kind: kind, Msg: msg}:
	default:
	}
}
