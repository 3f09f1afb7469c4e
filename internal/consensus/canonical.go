package consensus

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// Field-name conventions shared by every protocol message: the integrity
// hash is the last declared field whose json name starts with
// hashFieldPrefix, and the signature over it is the last declared field
// whose json name contains signatureFieldTag. Hash fields declared earlier
// are echoes of prior messages and are covered by the hash.
const (
	hashFieldPrefix   = "sha3_256_hash_of_"
	signatureFieldTag = "_signature_on_"
)

// FieldMap converts a message to its wire-field map, preserving numbers
// as json.Number so canonicalization does not depend on float formatting.
func FieldMap(msg any) (map[string]any, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "message is not a json object")
	}
	return m, nil
}

// OwnFields returns the json names of the message's own hash field and
// signature field. For structs these are resolved in declaration order;
// for maps, in sorted key order, so the result is deterministic either way.
func OwnFields(msg any) (hashField, sigField string) {
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			name := jsonFieldName(t.Field(i))
			if name == "" {
				continue
			}
			if strings.HasPrefix(name, hashFieldPrefix) {
				hashField = name
			}
			if strings.Contains(name, signatureFieldTag) {
				sigField = name
			}
		}
		return hashField, sigField
	}
	if m, ok := v.Interface().(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, name := range keys {
			if strings.HasPrefix(name, hashFieldPrefix) {
				hashField = name
			}
			if strings.Contains(name, signatureFieldTag) {
				sigField = name
			}
		}
	}
	return hashField, sigField
}

// SignerField derives the identity field paired with a signature field,
// e.g. "requester_pastelid_signature_on_request_hash" -> "requester_pastelid".
func SignerField(sigField string) string {
	idx := strings.Index(sigField, signatureFieldTag)
	if idx <= 0 {
		return ""
	}
	return sigField[:idx]
}

func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if comma := strings.Index(tag, ","); comma >= 0 {
		tag = tag[:comma]
	}
	return tag
}

// ComputeHash recomputes the canonical SHA3-256 hash of a message,
// excluding the message's own hash, signature and id fields along with
// any detached signature envelope.
func ComputeHash(msg any) (string, error) {
	m, err := FieldMap(msg)
	if err != nil {
		return "", err
	}
	hashField, sigField := OwnFields(msg)
	exclude := map[string]bool{"id": true, embeddedSignatureField: true}
	if hashField != "" {
		exclude[hashField] = true
	}
	if sigField != "" {
		exclude[sigField] = true
	}
	canonical := CanonicalString(m, exclude)
	digest := sha3.Sum256([]byte(canonical))
	return hex.EncodeToString(digest[:]), nil
}

// CanonicalString serializes a field map deterministically: keys sorted
// ascending with challenge-related keys moved last, booleans encoded as
// 0/1, nested objects recursively canonicalized.
func CanonicalString(m map[string]any, exclude map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if exclude[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ci, cj := strings.Contains(keys[i], "challenge"), strings.Contains(keys[j], "challenge")
		if ci != cj {
			return !ci
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalValue(m[k]))
	}
	return b.String()
}

// CanonicalValue canonicalizes a single field value. Exported for the
// majority-vote reconciliation, which tallies values by this encoding.
func CanonicalValue(v any) string {
	return canonicalValue(v)
}

func canonicalValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "1"
		}
		return "0"
	case json.Number:
		return val.String()
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = canonicalValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		return "{" + CanonicalString(val, nil) + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}
