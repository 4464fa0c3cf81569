package recorder

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for argument fingerprints. The version suffix enables future
// algorithm migration without colliding with old fingerprints.
const DomainCallArgs = "jztools/callargs/v1"

// CanonicalValue renders a Value as canonical JSON: keys sorted, strings
// NFC-normalized, floats via strconv with a forced fractional marker.
// Two Values that compare equal always produce identical canonical bytes.
func CanonicalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalAppend(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalAppend(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		b, err := marshalFloat(float64(x))
		if err != nil {
			return err
		}
		buf.Write(b)
	case String:
		return canonicalString(buf, string(x))
	case Bytes:
		buf.WriteString(`{"__bytes__":`)
		if err := canonicalString(buf, base64.StdEncoding.EncodeToString(x)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Time:
		buf.WriteString(`{"__time__":`)
		if err := canonicalString(buf, time.Time(x).UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalAppend(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, k := range x.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := canonicalAppend(buf, x[k]); err != nil {
				return fmt.Errorf("map[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

// canonicalString writes a JSON string with NFC normalization applied first,
// so visually identical strings with different Unicode compositions produce
// the same canonical bytes.
func canonicalString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// ValuesEqual reports whether two Values are equal by comparing their
// canonical renderings.
func ValuesEqual(a, b Value) bool {
	ab, errA := CanonicalValue(a)
	bb, errB := CanonicalValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// ArgsFingerprint computes a domain-separated SHA-256 fingerprint of a call's
// positional and keyword arguments. The null-byte separator prevents
// domain/data boundary ambiguity.
func ArgsFingerprint(args []Value, kwargs Map) (string, error) {
	payload := Map{
		"args":   List(args),
		"kwargs": kwargs,
	}
	if kwargs == nil {
		payload["kwargs"] = Map{}
	}
	canonical, err := CanonicalValue(payload)
	if err != nil {
		return "", fmt.Errorf("ArgsFingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainCallArgs))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
