// Package inscription encodes and decodes the on-chain receipt of a
// verified split.
//
// The binary form is the canonical audit record: 65 bytes, big-endian,
// fixed offsets, small enough for an 80-byte OP_RETURN. The text form is
// a lossy convenience rendering for memo fields: it truncates the proof
// hash to a 16-character prefix and drops the origin reference entirely,
// so a text decode never claims equivalence to the binary record.
package inscription

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Wire constants. Changing any of these breaks compatibility with every
// inscription already on the ledger.
const (
	ProtocolTag = "STS"
	Version     = 0x01

	// MinActID and MaxActID bound the valid closed range of known acts.
	MinActID = 1
	MaxActID = 12

	// BinarySize is tag(3) + version(1) + act(1) + hash(32) + amount(8) +
	// timestamp(4) + originRef(16).
	BinarySize = 65

	// MaxBinarySize is the OP_RETURN payload ceiling.
	MaxBinarySize = 80

	hashPrefixLen = 16 // hex chars of the proof hash kept in text form
	originRefLen  = 16 // bytes of the origin ref kept in binary form
)

var hexRe = regexp.MustCompile(`^[0-9a-f]+$`)

// Data is one inscription's content. ProofHash is the full 64-hex-char
// SHA-256 of the submitted text; OriginRef is the hex transaction id of
// the contribution being receipted.
type Data struct {
	ActID     int
	ProofHash string
	OriginRef string
	Amount    decimal.Decimal // primary share, 8-decimal fixed point
	Timestamp time.Time
}

// EncodeText renders the pipe-delimited memo form:
//
//	STS|v01|ACT:5|H:<hash16>|A:<hex minimal units>|T:<unix secs>
func EncodeText(d *Data) string {
	hash := d.ProofHash
	if len(hash) > hashPrefixLen {
		hash = hash[:hashPrefixLen]
	}
	return strings.Join([]string{
		ProtocolTag,
		fmt.Sprintf("v%02d", Version),
		fmt.Sprintf("ACT:%d", d.ActID),
		"H:" + hash,
		"A:" + strconv.FormatUint(minimalUnits(d.Amount), 16),
		"T:" + strconv.FormatInt(d.Timestamp.Unix(), 10),
	}, "|")
}

// EncodeBinary renders the canonical 65-byte record.
func EncodeBinary(d *Data) ([]byte, error) {
	hashBytes, err := hex.DecodeString(d.ProofHash)
	if err != nil || len(hashBytes) != 32 {
		return nil, fmt.Errorf("proof hash must be 32 bytes of hex")
	}

	refHex := d.OriginRef
	if len(refHex) > 2*originRefLen {
		refHex = refHex[:2*originRefLen]
	}
	refBytes, err := hex.DecodeString(refHex)
	if err != nil {
		return nil, fmt.Errorf("origin ref must be hex")
	}

	buf := make([]byte, BinarySize)
	copy(buf[0:3], ProtocolTag)
	buf[3] = Version
	buf[4] = byte(d.ActID)
	copy(buf[5:37], hashBytes)
	binary.BigEndian.PutUint64(buf[37:45], minimalUnits(d.Amount))
	binary.BigEndian.PutUint32(buf[45:49], uint32(d.Timestamp.Unix()))
	copy(buf[49:65], refBytes) // zero-padded when the ref is shorter

	return buf, nil
}

// DecodeText parses the memo form. The returned ProofHash is the 16-char
// prefix only and OriginRef is empty; callers needing the full record
// must decode the binary form.
func DecodeText(s string) *Data {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) < 2 || parts[0] != ProtocolTag {
		return nil
	}

	d := &Data{}
	seen := 0
	versioned := false
	for _, part := range parts[1:] {
		switch {
		case strings.HasPrefix(part, "v"):
			v, err := strconv.Atoi(strings.TrimPrefix(part, "v"))
			if err != nil || v != Version {
				return nil
			}
			versioned = true
		case strings.HasPrefix(part, "ACT:"):
			id, err := strconv.Atoi(part[4:])
			if err != nil {
				return nil
			}
			d.ActID = id
			seen++
		case strings.HasPrefix(part, "H:"):
			d.ProofHash = part[2:]
			seen++
		case strings.HasPrefix(part, "A:"):
			units, err := strconv.ParseUint(part[2:], 16, 64)
			if err != nil {
				return nil
			}
			d.Amount = fromMinimalUnits(units)
			seen++
		case strings.HasPrefix(part, "T:"):
			secs, err := strconv.ParseInt(part[2:], 10, 64)
			if err != nil {
				return nil
			}
			d.Timestamp = time.Unix(secs, 0).UTC()
			seen++
		}
	}
	if !versioned || seen < 4 {
		return nil
	}
	return d
}

// DecodeBinary parses the canonical record. Returns nil for payloads that
// are not well-formed inscriptions.
func DecodeBinary(buf []byte) *Data {
	if len(buf) < BinarySize || len(buf) > MaxBinarySize {
		return nil
	}
	if string(buf[0:3]) != ProtocolTag || buf[3] != Version {
		return nil
	}

	return &Data{
		ActID:     int(buf[4]),
		ProofHash: hex.EncodeToString(buf[5:37]),
		Amount:    fromMinimalUnits(binary.BigEndian.Uint64(buf[37:45])),
		Timestamp: time.Unix(int64(binary.BigEndian.Uint32(buf[45:49])), 0).UTC(),
		OriginRef: hex.EncodeToString(buf[49:65]),
	}
}

// Validate checks an inscription before encoding. It is an encode-time
// gate only: decoded historical inscriptions may be arbitrarily old and
// must not be re-validated against the current clock.
func Validate(d *Data) (bool, []string) {
	var errs []string

	if d.ActID < MinActID || d.ActID > MaxActID {
		errs = append(errs, fmt.Sprintf("act id %d out of range [%d, %d]", d.ActID, MinActID, MaxActID))
	}
	if len(d.ProofHash) != 64 || !hexRe.MatchString(strings.ToLower(d.ProofHash)) {
		errs = append(errs, "proof hash must be 64 hex chars")
	}
	if d.OriginRef == "" {
		errs = append(errs, "origin ref must be non-empty")
	} else if !hexRe.MatchString(strings.ToLower(d.OriginRef)) {
		errs = append(errs, "origin ref must be hex")
	}
	if d.Amount.Sign() <= 0 {
		errs = append(errs, "amount must be positive")
	}

	now := time.Now()
	if d.Timestamp.After(now.Add(60 * time.Second)) {
		errs = append(errs, "timestamp too far in the future")
	}
	if d.Timestamp.Before(now.AddDate(-1, 0, 0)) {
		errs = append(errs, "timestamp older than a year")
	}

	return len(errs) == 0, errs
}

func minimalUnits(amount decimal.Decimal) uint64 {
	return uint64(amount.Shift(8).IntPart())
}

func fromMinimalUnits(units uint64) decimal.Decimal {
	return decimal.New(int64(units), -8)
}
