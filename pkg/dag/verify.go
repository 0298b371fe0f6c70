package dag

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/flowforge-io/core/pkg/canonicalize"
	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/crypto"
)

// VerifyArtifact re-checks a compiled artifact: the checksum must match
// the IR bytes, and when pubKeyHex is non-empty the signature must
// verify against it.
func VerifyArtifact(artifact *contracts.CompiledArtifact, pubKeyHex string) error {
	if artifact == nil {
		return errors.New("dag: no artifact")
	}

	raw, err := base64.StdEncoding.DecodeString(artifact.IRBinary)
	if err != nil {
		return fmt.Errorf("dag: decode ir: %w", err)
	}
	if got := canonicalize.HashBytes(raw); got != artifact.IRChecksum {
		return fmt.Errorf("dag: checksum mismatch: recorded %s, computed %s", artifact.IRChecksum, got)
	}

	if pubKeyHex == "" {
		return nil
	}
	ok, err := crypto.VerifyEd25519(pubKeyHex, artifact.IRSignature, raw)
	if err != nil {
		return fmt.Errorf("dag: verify signature: %w", err)
	}
	if !ok {
		return errors.New("dag: signature invalid")
	}
	return nil
}
