package mining

import (
	"net"
	"testing"
	"time"

	hex "github.com/tmthrgd/go-hex"

	"github.com/verus-community/verusminer/internal/job"
	"github.com/verus-community/verusminer/internal/minerlog"
	"github.com/verus-community/verusminer/internal/stratum"
	"github.com/verus-community/verusminer/internal/verushash"
)

func TestAssemblePreimageZeroesMergedMiningSpan(t *testing.T) {
	t.Parallel()
	var j job.Job
	for i := range j.Header {
		j.Header[i] = 0xff
	}
	// a realistic 1344-byte solution body (job.SolutionBodyLen), not the
	// full 1347-byte prefixed buffer the preimage assembler builds itself.
	solBytes := make([]byte, job.SolutionBodyLen)
	for i := range solBytes {
		solBytes[i] = 0xff
	}
	solBytes[0] = 7 // solutionVersion
	solBytes[5] = 1 // merge-mining flag
	j.Solution = hex.EncodeToString(solBytes)

	pre := assemblePreimage(&j)
	if len(pre) != verushash.PreimageLen {
		t.Fatalf("assemblePreimage length = %d, want %d", len(pre), verushash.PreimageLen)
	}
	solStart := verushash.HeaderLen + len(job.SolutionPrefix)
	for i := 4; i < 100; i++ {
		if pre[i] != 0 {
			t.Errorf("preimage byte %d = %#x, want 0", i, pre[i])
		}
	}
	for i := 104; i < verushash.HeaderLen; i++ {
		if pre[i] != 0 {
			t.Errorf("preimage byte %d = %#x, want 0", i, pre[i])
		}
	}
	for i := solStart + 8; i < solStart+72; i++ {
		if pre[i] != 0 {
			t.Errorf("preimage solution byte %d = %#x, want 0", i-solStart, pre[i])
		}
	}
}

func TestAssemblePreimageLeavesHeaderAloneWithoutMergeMiningFlag(t *testing.T) {
	t.Parallel()
	var j job.Job
	for i := range j.Header {
		j.Header[i] = 0xff
	}
	// no j.Solution set: decodes to an all-zero buffer, so solutionVersion
	// (byte 0) is 0 and the merge-mining gate never fires.
	pre := assemblePreimage(&j)
	for i := 0; i < verushash.HeaderLen; i++ {
		if pre[i] != 0xff {
			t.Errorf("preimage header byte %d = %#x, want untouched 0xff", i, pre[i])
		}
	}
}

func TestAssemblePreimageEmbedsSolution(t *testing.T) {
	t.Parallel()
	var j job.Job
	solBytes := make([]byte, job.SolutionBodyLen)
	for i := range solBytes {
		solBytes[i] = byte(i)
	}
	j.Solution = hex.EncodeToString(solBytes)

	pre := assemblePreimage(&j)

	prefix := pre[verushash.HeaderLen : verushash.HeaderLen+len(job.SolutionPrefix)]
	for i, want := range job.SolutionPrefix {
		if prefix[i] != want {
			t.Fatalf("preimage solution prefix byte %d = %#x, want %#x", i, prefix[i], want)
		}
	}

	body := pre[verushash.HeaderLen+len(job.SolutionPrefix):]
	for i := range solBytes {
		if body[i] != solBytes[i] {
			t.Fatalf("preimage solution body byte %d = %#x, want %#x", i, body[i], solBytes[i])
		}
	}
}

// TestEngineFindsAndSubmitsShare wires an Engine against a trivially-easy
// target (accepts every hash) so the very first nonce a worker tries is a
// share, and checks it reaches the fake pool as a mining.submit.
func TestEngineFindsAndSubmitsShare(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	submitSeen := make(chan struct{}, 1)
	go serveAcceptAllPool(t, ln, submitSeen)

	tcpAddr := ln.Addr().(*net.TCPAddr)
	client := stratum.New(stratum.Config{
		Host:        "127.0.0.1",
		Port:        uint16(tcpAddr.Port),
		Username:    "user.worker",
		Password:    "x",
		DialTimeout: 2 * time.Second,
	}, minerlog.Subsystem("STRT"))

	engine := New(client, "user.worker", 1, minerlog.Subsystem("MINE"))
	engine.Start()
	defer engine.Stop()
	defer client.Close()

	go client.Run()

	select {
	case <-submitSeen:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a share submission")
	}
}

func serveAcceptAllPool(t *testing.T, ln net.Listener, submitSeen chan<- struct{}) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	rd := newLineReader(conn)

	rd.next() // subscribe
	writeLine(conn, `{"id":2,"result":[["mining.notify","sub1"],"aa",4],"error":null}`)

	rd.next() // authorize
	writeLine(conn, `{"id":3,"result":true,"error":null}`)

	// a maximal target (all 0xff) makes every hash a share, so the test
	// doesn't depend on actually finding a real proof-of-work nonce.
	maxTarget := ""
	for i := 0; i < 64; i++ {
		maxTarget += "f"
	}
	writeLine(conn, `{"id":null,"method":"mining.set_target","params":["`+maxTarget+`"]}`)

	notify := buildEasyNotify()
	writeLine(conn, notify)

	for {
		line := rd.next()
		if line == "" {
			return
		}
		writeLine(conn, `{"id":4,"result":true,"error":null}`)
		select {
		case submitSeen <- struct{}{}:
		default:
		}
	}
}

func buildEasyNotify() string {
	hexN := func(pair string, n int) string {
		out := make([]byte, 0, n*2)
		for i := 0; i < n; i++ {
			out = append(out, pair[0], pair[1])
		}
		return string(out)
	}
	return `{"id":null,"method":"mining.notify","params":["job1","` +
		hexN("00", 4) + `","` + hexN("ab", 32) + `","` + hexN("cd", 32) + `","` +
		hexN("ef", 32) + `","` + hexN("11", 4) + `","` + hexN("22", 4) + `",true,"` +
		hexN("00", 1344) + `"]}` + "\n"
}

type lineReader struct {
	conn net.Conn
	buf  []byte
}

func newLineReader(conn net.Conn) *lineReader {
	return &lineReader{conn: conn}
}

func (r *lineReader) next() string {
	for {
		if idx := indexByte(r.buf, '\n'); idx >= 0 {
			line := string(r.buf[:idx])
			r.buf = r.buf[idx+1:]
			return line
		}
		tmp := make([]byte, 4096)
		n, err := r.conn.Read(tmp)
		if n > 0 {
			r.buf = append(r.buf, tmp[:n]...)
		}
		if err != nil {
			return ""
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func writeLine(conn net.Conn, s string) {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	_, _ = conn.Write([]byte(s))
}
