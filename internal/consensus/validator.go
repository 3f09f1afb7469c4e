package consensus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pastelnetwork/go-inference-client/internal/config"
	"github.com/pastelnetwork/go-inference-client/internal/identity"
	"github.com/pastelnetwork/go-inference-client/internal/ledger"
	"github.com/pastelnetwork/go-inference-client/internal/types"
	"github.com/pastelnetwork/go-inference-client/internal/util"
)

// Field-name suffixes checked for freshness.
const (
	timestampFieldSuffix   = "_utc_iso_string"
	blockHeightFieldSuffix = "_pastel_block_height"
)

// embeddedSignatureField carries a base64 JSON envelope with signer and
// signature for messages whose principal signer is not a top-level field.
const embeddedSignatureField = "embedded_signature_json_b64"

type embeddedSignature struct {
	SignerPastelID string `json:"signer_pastelid"`
	Signature      string `json:"signature"`
}

// Validator cross-checks protocol message integrity: hash recomputation,
// signature verification and timestamp/block-height freshness.
type Validator struct {
	cfg      config.Validation
	identity identity.Service
	ledger   ledger.Service
	clock    time2.Clock
}

// NewValidator creates a validator.
func NewValidator(cfg config.Validation, ids identity.Service, lgr ledger.Service, clock time2.Clock) *Validator {
	return &Validator{cfg: cfg, identity: ids, ledger: lgr, clock: clock}
}

// ValidateMessage runs freshness, integrity and signature checks on a
// protocol message. Any failure is reported as ErrIntegrityFailure so the
// state machines abandon the responding node.
func (v *Validator) ValidateMessage(ctx context.Context, msg any) error {
	m, err := FieldMap(msg)
	if err != nil {
		return errors.Wrap(types.ErrIntegrityFailure, err.Error())
	}

	if err := v.checkFreshness(ctx, m); err != nil {
		return err
	}

	hashField, sigField := OwnFields(msg)
	if hashField == "" {
		return errors.Wrap(types.ErrIntegrityFailure, "message has no integrity hash field")
	}

	declaredHash, _ := m[hashField].(string)
	recomputed, err := ComputeHash(msg)
	if err != nil {
		return errors.Wrap(types.ErrIntegrityFailure, err.Error())
	}
	if declaredHash != recomputed {
		log.Debug().
			Str("field", hashField).
			Str("declared", declaredHash).
			Str("recomputed", recomputed).
			Msg("message hash mismatch")
		return errors.Wrapf(types.ErrIntegrityFailure, "hash mismatch on %s", hashField)
	}

	return v.checkSignature(ctx, m, sigField, recomputed)
}

func (v *Validator) checkFreshness(ctx context.Context, m map[string]any) error {
	var tip int64 = -1
	for field, raw := range m {
		switch {
		case strings.HasSuffix(field, timestampFieldSuffix):
			ts, ok := raw.(string)
			if !ok || ts == "" {
				continue
			}
			t, err := util.ParseUTCTimestamp(ts)
			if err != nil {
				return errors.Wrapf(types.ErrIntegrityFailure, "unparseable timestamp field %s", field)
			}
			age := v.clock.Since(t)
			if age < 0 {
				age = -age
			}
			if age > v.cfg.TimestampTolerance {
				return errors.Wrapf(types.ErrIntegrityFailure, "stale timestamp field %s (age %s)", field, age)
			}
		case strings.HasSuffix(field, blockHeightFieldSuffix):
			num, ok := raw.(json.Number)
			if !ok {
				continue
			}
			height, err := num.Int64()
			if err != nil {
				return errors.Wrapf(types.ErrIntegrityFailure, "unparseable block height field %s", field)
			}
			if tip < 0 {
				tip, err = v.ledger.CurrentBlockHeight(ctx)
				if err != nil {
					return errors.Wrap(err, "failed to fetch chain tip for freshness check")
				}
			}
			delta := tip - height
			if delta < 0 {
				delta = -delta
			}
			if delta > v.cfg.BlockHeightTolerance {
				return errors.Wrapf(types.ErrIntegrityFailure, "stale block height field %s (%d vs tip %d)", field, height, tip)
			}
		}
	}
	return nil
}

func (v *Validator) checkSignature(ctx context.Context, m map[string]any, sigField, hash string) error {
	var signer, signature string
	if sigField != "" {
		signature, _ = m[sigField].(string)
		signer, _ = m[SignerField(sigField)].(string)
	} else if envB64, ok := m[embeddedSignatureField].(string); ok {
		envJSON, err := base64.StdEncoding.DecodeString(envB64)
		if err != nil {
			return errors.Wrap(types.ErrIntegrityFailure, "malformed embedded signature encoding")
		}
		var env embeddedSignature
		if err := json.Unmarshal(envJSON, &env); err != nil {
			return errors.Wrap(types.ErrIntegrityFailure, "malformed embedded signature envelope")
		}
		signer, signature = env.SignerPastelID, env.Signature
	}

	if signer == "" || signature == "" {
		return errors.Wrap(types.ErrIntegrityFailure, "message has no verifiable signature")
	}

	ok, err := v.identity.Verify(ctx, signer, hash, signature)
	if err != nil {
		return errors.Wrap(err, "signature verification errored")
	}
	if !ok {
		return errors.Wrapf(types.ErrIntegrityFailure, "signature by %s does not verify", signer)
	}
	return nil
}
