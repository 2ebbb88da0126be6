package stratum

import (
	"bufio"
	"net"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/verus-community/verusminer/internal/job"
	"github.com/verus-community/verusminer/internal/minerlog"
)

func discardLogger() minerlog.Logger {
	return minerlog.Subsystem("STRT")
}

// fakePool is a minimal Stratum server good enough to drive Client through
// subscribe/authorize/notify without a real mining pool.
type fakePool struct {
	ln net.Listener
}

func startFakePool(t *testing.T) *fakePool {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakePool{ln: ln}
}

func (p *fakePool) addr(t *testing.T) (string, uint16) {
	t.Helper()
	tcpAddr, ok := p.ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address type")
	}
	return "127.0.0.1", uint16(tcpAddr.Port)
}

func (p *fakePool) serveOnce(t *testing.T, notify []interface{}) {
	t.Helper()
	go func() {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 4096), maxLineLength)

		// mining.subscribe
		if !scanner.Scan() {
			return
		}
		var req rpcRequest
		_ = json.Unmarshal(scanner.Bytes(), &req)
		subResp := map[string]interface{}{
			"id":     req.ID,
			"result": []interface{}{[]interface{}{"mining.notify", "sub1"}, "aabbccdd", 4},
			"error":  nil,
		}
		writeJSONLine(conn, subResp)

		// mining.authorize
		if !scanner.Scan() {
			return
		}
		_ = json.Unmarshal(scanner.Bytes(), &req)
		authResp := map[string]interface{}{
			"id":     req.ID,
			"result": true,
			"error":  nil,
		}
		writeJSONLine(conn, authResp)

		// mining.notify push
		notifyMsg := map[string]interface{}{
			"id":     nil,
			"method": "mining.notify",
			"params": notify,
		}
		writeJSONLine(conn, notifyMsg)

		// keep the connection open for the submit round-trip
		if scanner.Scan() {
			_ = json.Unmarshal(scanner.Bytes(), &req)
			submitResp := map[string]interface{}{
				"id":     req.ID,
				"result": true,
				"error":  nil,
			}
			writeJSONLine(conn, submitResp)
		}

		for scanner.Scan() {
		}
	}()
}

func writeJSONLine(conn net.Conn, v interface{}) {
	line, _ := json.Marshal(v)
	line = append(line, '\n')
	_, _ = conn.Write(line)
}

func sampleParams() []interface{} {
	hexN := func(pair string, n int) string {
		out := make([]byte, 0, n*2)
		for i := 0; i < n; i++ {
			out = append(out, pair[0], pair[1])
		}
		return string(out)
	}
	return []interface{}{
		"job1",
		hexN("00", 4),
		hexN("ab", 32),
		hexN("cd", 32),
		hexN("ef", 32),
		hexN("11", 4),
		hexN("22", 4),
		true,
		hexN("33", 1344),
	}
}

func TestClientSubscribeAuthorizeNotify(t *testing.T) {
	t.Parallel()
	pool := startFakePool(t)
	defer pool.ln.Close()
	pool.serveOnce(t, sampleParams())

	host, port := pool.addr(t)
	c := New(Config{Host: host, Port: port, Username: "user.worker", Password: "x", DialTimeout: 2 * time.Second}, discardLogger())

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	select {
	case j := <-c.Jobs:
		if j.ID != "job1" {
			t.Errorf("job ID = %q, want job1", j.ID)
		}
		if c.State() != StateMining {
			t.Errorf("client state = %v, want mining", c.State())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for mining.notify job")
	}

	c.Close()
	<-done
}

func TestClientSubmitAccepted(t *testing.T) {
	t.Parallel()
	pool := startFakePool(t)
	defer pool.ln.Close()
	pool.serveOnce(t, sampleParams())

	host, port := pool.addr(t)
	c := New(Config{Host: host, Port: port, Username: "user.worker", Password: "x", DialTimeout: 2 * time.Second}, discardLogger())

	go c.Run()

	var j *job.Job
	select {
	case j = <-c.Jobs:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for job")
	}

	err := c.Submit("user.worker", job.BuildSubmission(j, c.ExtraNonce1(), 0))
	if err != nil {
		t.Errorf("Submit returned error: %v", err)
	}
	accepted, rejected := c.Stats()
	if accepted != 1 || rejected != 0 {
		t.Errorf("Stats() = (%d, %d), want (1, 0)", accepted, rejected)
	}

	c.Close()
}

func TestContainsStale(t *testing.T) {
	t.Parallel()
	cases := []struct {
		msg  string
		want bool
	}{
		{`"job not found"`, true},
		{`"Stale share"`, true},
		{`"low difficulty share"`, false},
		{"", false},
	}
	for _, tt := range cases {
		if got := containsStale(tt.msg); got != tt.want {
			t.Errorf("containsStale(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
