// Package audit keeps a tamper-evident record of executed instructions:
// an append-only chain where every record hashes its predecessor and
// carries a signature over its own content hash. Any insertion, deletion,
// or edit breaks verification.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge-io/core/pkg/canonicalize"
	"github.com/flowforge-io/core/pkg/crypto"
)

// genesisHash anchors the first record of every chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one audit chain entry. Created once, never mutated.
type Record struct {
	EventID           string `json:"eventId"`
	Timestamp         string `json:"timestamp"` // RFC3339, millisecond precision
	NodeID            string `json:"nodeId"`
	WorkflowID        string `json:"workflowId"`
	InstructionID     string `json:"instructionId,omitempty"`
	EventType         string `json:"eventType"`
	InputHash         string `json:"inputHash"`
	OutputHash        string `json:"outputHash"`
	DurationMs        int64  `json:"durationMs"`
	PreviousHash      string `json:"previousHash"`
	SelfHash          string `json:"selfHash"`
	Signature         string `json:"signature"`
	SignerCertificate string `json:"signerCertificate"`
	Algorithm         string `json:"algorithm"`
}

// recordBody is the hashed portion: everything except the fields derived
// from the hash itself.
type recordBody struct {
	EventID       string `json:"eventId"`
	Timestamp     string `json:"timestamp"`
	NodeID        string `json:"nodeId"`
	WorkflowID    string `json:"workflowId"`
	InstructionID string `json:"instructionId,omitempty"`
	EventType     string `json:"eventType"`
	InputHash     string `json:"inputHash"`
	OutputHash    string `json:"outputHash"`
	DurationMs    int64  `json:"durationMs"`
	PreviousHash  string `json:"previousHash"`
}

// Event describes one executed instruction to be recorded.
type Event struct {
	WorkflowID    string
	InstructionID string
	EventType     string
	Input         any
	Output        any
	DurationMs    int64
}

// Chain is an in-memory append-only audit chain for one node.
type Chain struct {
	mu      sync.Mutex
	nodeID  string
	signer  crypto.Signer
	records []Record
	clock   func() time.Time
}

// NewChain creates an empty chain signing with the given key.
func NewChain(nodeID string, signer crypto.Signer) *Chain {
	return &Chain{nodeID: nodeID, signer: signer, clock: time.Now}
}

// Resume continues a persisted chain: the next append links to the tail
// of the given records instead of starting from genesis.
func Resume(nodeID string, signer crypto.Signer, records []Record) *Chain {
	c := NewChain(nodeID, signer)
	c.records = append(c.records, records...)
	return c
}

// WithClock overrides the clock for deterministic testing.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// Append records one executed instruction and returns the signed record.
func (c *Chain) Append(ev Event) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := genesisHash
	if n := len(c.records); n > 0 {
		var err error
		prevHash, err = hashRecord(c.records[n-1])
		if err != nil {
			return Record{}, err
		}
	}

	inputHash, err := canonicalize.Hash(ev.Input)
	if err != nil {
		return Record{}, fmt.Errorf("audit: hash input: %w", err)
	}
	outputHash, err := canonicalize.Hash(ev.Output)
	if err != nil {
		return Record{}, fmt.Errorf("audit: hash output: %w", err)
	}

	body := recordBody{
		EventID:       uuid.NewString(),
		Timestamp:     c.clock().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		NodeID:        c.nodeID,
		WorkflowID:    ev.WorkflowID,
		InstructionID: ev.InstructionID,
		EventType:     ev.EventType,
		InputHash:     inputHash,
		OutputHash:    outputHash,
		DurationMs:    ev.DurationMs,
		PreviousHash:  prevHash,
	}

	selfHash, err := canonicalize.Hash(body)
	if err != nil {
		return Record{}, fmt.Errorf("audit: hash record: %w", err)
	}
	signature, err := c.signer.Sign([]byte(selfHash))
	if err != nil {
		return Record{}, fmt.Errorf("audit: sign record: %w", err)
	}

	record := Record{
		EventID:           body.EventID,
		Timestamp:         body.Timestamp,
		NodeID:            body.NodeID,
		WorkflowID:        body.WorkflowID,
		InstructionID:     body.InstructionID,
		EventType:         body.EventType,
		InputHash:         body.InputHash,
		OutputHash:        body.OutputHash,
		DurationMs:        body.DurationMs,
		PreviousHash:      body.PreviousHash,
		SelfHash:          selfHash,
		Signature:         signature,
		SignerCertificate: c.signer.PublicKey(),
		Algorithm:         c.signer.Algorithm(),
	}

	c.records = append(c.records, record)
	return record, nil
}

// Snapshot returns a copy of the chain without consuming it.
func (c *Chain) Snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Drain removes and returns every record, for shipping to the central
// node. The next append starts a fresh chain from genesis.
func (c *Chain) Drain() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.records
	c.records = nil
	return out
}

// Verify walks the chain and returns the number of valid records, or an
// error at the first broken hash, link, or signature.
func (c *Chain) Verify() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return VerifyRecords(c.records)
}

// VerifyRecords checks an arbitrary record sequence: self hashes, chain
// linkage, and Ed25519 signatures when the algorithm matches.
func VerifyRecords(records []Record) (int, error) {
	for i, r := range records {
		expected, err := canonicalize.Hash(bodyOf(r))
		if err != nil {
			return i, fmt.Errorf("audit: rehash record %d: %w", i, err)
		}
		if expected != r.SelfHash {
			return i, fmt.Errorf("audit: record %d self hash mismatch", i)
		}

		if i == 0 {
			if r.PreviousHash != genesisHash {
				return i, fmt.Errorf("audit: record 0 does not anchor at genesis")
			}
		} else {
			prevHash, err := hashRecord(records[i-1])
			if err != nil {
				return i, err
			}
			if r.PreviousHash != prevHash {
				return i, fmt.Errorf("audit: record %d chain link broken", i)
			}
		}

		if r.Algorithm == "ED25519" {
			ok, err := crypto.VerifyEd25519(r.SignerCertificate, r.Signature, []byte(r.SelfHash))
			if err != nil {
				return i, fmt.Errorf("audit: record %d signature check: %w", i, err)
			}
			if !ok {
				return i, fmt.Errorf("audit: record %d signature invalid", i)
			}
		}
	}
	return len(records), nil
}

// hashRecord hashes a complete record, signature included, producing the
// value the successor must carry as PreviousHash.
func hashRecord(r Record) (string, error) {
	h, err := canonicalize.Hash(r)
	if err != nil {
		return "", fmt.Errorf("audit: hash predecessor: %w", err)
	}
	return h, nil
}

func bodyOf(r Record) recordBody {
	return recordBody{
		EventID:       r.EventID,
		Timestamp:     r.Timestamp,
		NodeID:        r.NodeID,
		WorkflowID:    r.WorkflowID,
		InstructionID: r.InstructionID,
		EventType:     r.EventType,
		InputHash:     r.InputHash,
		OutputHash:    r.OutputHash,
		DurationMs:    r.DurationMs,
		PreviousHash:  r.PreviousHash,
	}
}
