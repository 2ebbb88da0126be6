// Package job holds one Stratum mining.notify job: the block-header
// template a pool sent, and the helpers to turn a mining nonce into a
// wire-format mining.submit.
package job

import (
	"encoding/binary"
	"fmt"

	hex "github.com/tmthrgd/go-hex"

	"github.com/verus-community/verusminer/internal/target"
)

// HeaderLen is the Verus block header length: version(4) + prevhash(32) +
// merkleroot(32) + finalsaplingroot(32) + ntime(4) + nbits(4) + nnonce(32).
const HeaderLen = 140

// SolutionBodyLen is the fixed padded/truncated solution body length in
// bytes that mining.submit's solhex carries after its 3-byte compact-size
// prefix.
const SolutionBodyLen = 1344

// nonceSpaceOffset is the byte offset within the 1347-byte solution
// (prefix included) where the 15-byte nonce space is overlaid, per
// ccminer's convention that stratum_client.cpp documents and replicates.
const nonceSpaceOffset = 1332

// SolutionPrefix is the 3-byte compact-size encoding of SolutionBodyLen
// (1344) that stratum_client.cpp prepends to every solution before hashing
// or submitting it, so hex "fd4005" always precedes the body on the wire.
var SolutionPrefix = [3]byte{0xfd, 0x40, 0x05}

// Job is one mining.notify job.
type Job struct {
	ID               string
	Version          string
	PrevHash         string
	MerkleRoot       string
	FinalSaplingRoot string
	NTime            string
	NBits            string
	CleanJobs        bool
	Solution         string
	Difficulty       float64

	Header [HeaderLen]byte
	Target target.Target
}

// ParseNotify builds a Job from a mining.notify params array:
// [job_id, version, prevhash, merkleroot, finalsaplingroot, ntime, nbits,
// clean_jobs, solution]. extranonce1 is the client's currently assigned
// pool nonce, used to fill the header's nNonce prefix.
func ParseNotify(params []interface{}, extranonce1 []byte, difficulty float64) (*Job, error) {
	if len(params) < 8 {
		return nil, fmt.Errorf("job: mining.notify needs at least 8 params, got %d", len(params))
	}

	str := func(i int) (string, error) {
		s, ok := params[i].(string)
		if !ok {
			return "", fmt.Errorf("job: param %d is not a string", i)
		}
		return s, nil
	}

	j := &Job{Difficulty: difficulty}

	var err error
	if j.ID, err = str(0); err != nil {
		return nil, err
	}
	if j.Version, err = str(1); err != nil {
		return nil, err
	}
	if j.PrevHash, err = str(2); err != nil {
		return nil, err
	}
	if j.MerkleRoot, err = str(3); err != nil {
		return nil, err
	}
	if j.FinalSaplingRoot, err = str(4); err != nil {
		return nil, err
	}
	if j.NTime, err = str(5); err != nil {
		return nil, err
	}
	if j.NBits, err = str(6); err != nil {
		return nil, err
	}
	if clean, ok := params[7].(bool); ok {
		j.CleanJobs = clean
	}
	if len(params) > 8 {
		if sol, ok := params[8].(string); ok {
			j.Solution = sol
		}
	}

	if err := j.constructHeader(extranonce1); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Job) constructHeader(extranonce1 []byte) error {
	put := func(off int, s string, n int) error {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("job: bad hex field: %w", err)
		}
		if len(b) != n {
			return fmt.Errorf("job: expected %d bytes, got %d", n, len(b))
		}
		copy(j.Header[off:off+n], b)
		return nil
	}

	if err := put(0, j.Version, 4); err != nil {
		return err
	}
	if err := put(4, j.PrevHash, 32); err != nil {
		return err
	}
	if err := put(36, j.MerkleRoot, 32); err != nil {
		return err
	}
	if err := put(68, j.FinalSaplingRoot, 32); err != nil {
		return err
	}
	if err := put(100, j.NTime, 4); err != nil {
		return err
	}
	if err := put(104, j.NBits, 4); err != nil {
		return err
	}
	copy(j.Header[108:108+len(extranonce1)], extranonce1)
	return nil
}

// BuildNonceSpace builds the 15-byte nonce space embedded in a share's
// solution: bytes 0-6 mirror header[108:115] (extranonce1 plus the first
// bytes of extranonce2), bytes 7-10 mirror header[128:132] (zero under
// merged mining), bytes 11-14 are the little-endian mining nonce.
func BuildNonceSpace(extranonce1 []byte, header [HeaderLen]byte, nonce uint32) [15]byte {
	var ns [15]byte
	copy(ns[0:7], header[108:115])
	copy(ns[7:11], header[128:132])
	binary.LittleEndian.PutUint32(ns[11:15], nonce)
	return ns
}

// Submission is a fully-formed mining.submit's positional parameters
// (excluding the leading worker username), matching ccminer's
// [user, jobid, timehex, noncestr, solhex] layout.
type Submission struct {
	JobID    string
	NTime    string
	NonceStr string
	SolHex   string
}

// BuildSubmission renders a Submission for one accepted nonce. extranonce1
// is the client's pool-assigned prefix; nonce is the winning mining nonce.
func BuildSubmission(j *Job, extranonce1 []byte, nonce uint32) Submission {
	ns := BuildNonceSpace(extranonce1, j.Header, nonce)

	var fullNonce [32]byte
	copy(fullNonce[:], extranonce1)
	binary.LittleEndian.PutUint32(fullNonce[12:16], nonce)
	nonceStr := hex.EncodeToString(fullNonce[len(extranonce1):])

	body := make([]byte, SolutionBodyLen*2)
	for i := range body {
		body[i] = '0'
	}
	solHexIn := []byte(j.Solution)
	if len(solHexIn) > len(body) {
		solHexIn = solHexIn[:len(body)]
	}
	copy(body, solHexIn)

	nsHex := hex.EncodeToString(ns[:])
	// nonceSpaceOffset is a byte offset into the 1347-byte solution
	// (3-byte prefix + 1344-byte body); the body itself starts 3 bytes in,
	// so within body the overlay starts at (nonceSpaceOffset-3)*2 hex
	// chars.
	bodyOffsetHex := (nonceSpaceOffset - 3) * 2
	copy(body[bodyOffsetHex:bodyOffsetHex+len(nsHex)], nsHex)

	solHex := hex.EncodeToString(SolutionPrefix[:]) + string(body)

	return Submission{
		JobID:    j.ID,
		NTime:    j.NTime,
		NonceStr: nonceStr,
		SolHex:   solHex,
	}
}
