// Package mining implements the CPU worker pool that turns Stratum jobs
// into VerusHash attempts: N striped worker goroutines plus the
// job-staleness and share-submission plumbing around them, modeled on
// dilithium-miner/pool_worker.go's mineForPool and miner.go's
// staleness-poll pattern.
package mining

import (
	"sync"
	"sync/atomic"
	"time"

	hex "github.com/tmthrgd/go-hex"

	"github.com/verus-community/verusminer/internal/job"
	"github.com/verus-community/verusminer/internal/minerlog"
	"github.com/verus-community/verusminer/internal/stratum"
	"github.com/verus-community/verusminer/internal/verushash"
)

// batchSize bounds how many nonces a worker hashes before checking whether
// its job has gone stale, per spec: batches of 65536 nonces bound
// job-staleness checks.
const batchSize = 65536

// Stats is a snapshot of one worker thread's counters, served by the stats
// API.
type Stats struct {
	Thread     int
	HashCount  uint64
	SharesFound uint64
}

// Engine owns the worker pool for one pool connection.
type Engine struct {
	client   *stratum.Client
	username string
	threads  int
	log      minerlog.Logger

	currentJob atomic.Pointer[job.Job]
	running    atomic.Bool

	hashCounts []uint64
	shareFinds []uint64

	wg sync.WaitGroup
}

// New builds an Engine with the given thread count, reading jobs and
// posting submissions through client.
func New(client *stratum.Client, username string, threads int, log minerlog.Logger) *Engine {
	if threads <= 0 {
		threads = 1
	}
	return &Engine{
		client:     client,
		username:   username,
		threads:    threads,
		log:        log,
		hashCounts: make([]uint64, threads),
		shareFinds: make([]uint64, threads),
	}
}

// Start launches the worker goroutines and a job-dispatch goroutine that
// forwards mining.notify jobs from the Stratum client. It returns
// immediately; call Stop to shut down.
func (e *Engine) Start() {
	e.running.Store(true)

	e.wg.Add(1)
	go e.dispatchJobs()

	for t := 0; t < e.threads; t++ {
		e.wg.Add(1)
		go e.worker(t)
	}
}

// Stop signals every worker to exit and waits for them.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.wg.Wait()
}

// Stats returns a snapshot of per-thread counters.
func (e *Engine) Stats() []Stats {
	out := make([]Stats, e.threads)
	for t := 0; t < e.threads; t++ {
		out[t] = Stats{
			Thread:      t,
			HashCount:   atomic.LoadUint64(&e.hashCounts[t]),
			SharesFound: atomic.LoadUint64(&e.shareFinds[t]),
		}
	}
	return out
}

// TotalHashes sums the per-thread hash counters, for a global hashrate
// estimate.
func (e *Engine) TotalHashes() uint64 {
	var total uint64
	for t := range e.hashCounts {
		total += atomic.LoadUint64(&e.hashCounts[t])
	}
	return total
}

func (e *Engine) dispatchJobs() {
	defer e.wg.Done()
	for e.running.Load() {
		select {
		case j, ok := <-e.client.Jobs:
			if !ok {
				return
			}
			e.currentJob.Store(j)
			e.log.Infof("new job %s (clean=%v, difficulty=%.4f)", j.ID, j.CleanJobs, j.Difficulty)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (e *Engine) worker(thread int) {
	defer e.wg.Done()

	var lastJob *job.Job
	hasher := verushash.New()
	var intermediate [64]byte
	var extranonce1 []byte

	nonce := uint32(thread)
	stride := uint32(e.threads)

	for e.running.Load() {
		j := e.currentJob.Load()
		if j == nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if j != lastJob {
			lastJob = j
			extranonce1 = e.client.ExtraNonce1()
			preimage := assemblePreimage(j)
			intermediate = verushash.HashHalf(preimage)
			hasher.PrepareKey(intermediate)
			nonce = uint32(thread)
		}

		for i := 0; i < batchSize && e.running.Load(); i++ {
			ns := job.BuildNonceSpace(extranonce1, j.Header, nonce)
			hash := hasher.HashWithNonce(intermediate, ns)
			atomic.AddUint64(&e.hashCounts[thread], 1)

			if j.Target.Meets(hash) {
				atomic.AddUint64(&e.shareFinds[thread], 1)
				if e.currentJob.Load() != j {
					e.log.Debugf("dropped stale share for job %s", j.ID)
					break
				}
				e.submit(j, extranonce1, nonce)
			}

			nonce += stride
		}

		if cur := e.currentJob.Load(); cur != j {
			continue
		}
	}
}

func (e *Engine) submit(j *job.Job, extranonce1 []byte, nonce uint32) {
	sub := job.BuildSubmission(j, extranonce1, nonce)
	if err := e.client.Submit(e.username, sub); err != nil {
		if serr, ok := err.(*stratum.Error); ok && serr.Kind == stratum.ErrStaleShare {
			e.log.Debugf("dropped stale share for job %s", j.ID)
			return
		}
		e.log.Warnf("share submit failed: %v", err)
		return
	}
	e.log.Infof("share accepted (job %s, nonce %08x)", j.ID, nonce)
}

// assemblePreimage builds the header+solution buffer HashHalf digests,
// zeroing the merged-mining fields first when the solution says this job is
// merge-mined. The solution segment carries job.SolutionPrefix ("fd4005")
// ahead of its body, exactly as stratum_client.cpp lays out work->extra
// before hashing it — the hashed buffer and the mining.submit wire buffer
// share the same prefix-then-body shape.
func assemblePreimage(j *job.Job) []byte {
	header := j.Header

	solution := make([]byte, verushash.PreimageLen-verushash.HeaderLen)
	copy(solution[:len(job.SolutionPrefix)], job.SolutionPrefix[:])
	if j.Solution != "" {
		if decoded, err := hex.DecodeString(j.Solution); err == nil {
			n := len(decoded)
			if n > job.SolutionBodyLen {
				n = job.SolutionBodyLen
			}
			copy(solution[len(job.SolutionPrefix):], decoded[:n])
		}
	}

	verushash.MergedMiningZero(&header, solution)

	return verushash.AssemblePreimage(header, solution)
}
