package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// candidatePreviewLimit caps the decoded body preview stored per candidate.
const candidatePreviewLimit = 1000

// BodyHashCandidate is one plausible byte form of the request body together
// with the digest a signer hashing that form would have produced. The
// diagnosis pairs every candidate with every canonicalization variant.
type BodyHashCandidate struct {
	Name        string   `json:"name"`
	SourceNames []string `json:"source_names"`
	BodyLen     int      `json:"body_len"`
	BodySHA256  string   `json:"body_sha256"`
	BodyPreview string   `json:"body_preview,omitempty"`
}

// DiagnosisParams records the exact inputs of one replayed verification.
type DiagnosisParams struct {
	AgentName              string   `json:"agent_name"`
	Method                 string   `json:"method"`
	Path                   string   `json:"path"`
	LineEnding             string   `json:"line_ending"`
	UppercaseMethod        bool     `json:"uppercase_method"`
	BodyHashSource         string   `json:"body_hash_source"`
	BodyHashSourceAllNames []string `json:"body_hash_source_all_names,omitempty"`
	BodySHA256             string   `json:"body_sha256"`
}

// DiagnosisAttempt is one replayed verification of the original signature
// against an alternate canonical message.
type DiagnosisAttempt struct {
	Variant       string          `json:"variant"`
	OK            bool            `json:"ok"`
	Reason        string          `json:"reason,omitempty"`
	Params        DiagnosisParams `json:"params"`
	MessageSHA256 string          `json:"message_sha256"`
}

// Diagnosis explains a signature mismatch by replaying verification under
// alternate canonicalization rules and body forms. It is informational only
// and never changes the terminal verification status.
type Diagnosis struct {
	MatchedVariant    string             `json:"matched_variant,omitempty"`
	MatchedBodySource string             `json:"matched_body_source,omitempty"`
	Summary           string             `json:"summary"`
	Attempts          []DiagnosisAttempt `json:"attempts"`
}

// Copy returns a deep copy, nil-safe.
func (d *Diagnosis) Copy() *Diagnosis {
	if d == nil {
		return nil
	}
	c := &Diagnosis{
		MatchedVariant:    d.MatchedVariant,
		MatchedBodySource: d.MatchedBodySource,
		Summary:           d.Summary,
	}
	if d.Attempts != nil {
		c.Attempts = make([]DiagnosisAttempt, len(d.Attempts))
		for i, a := range d.Attempts {
			ca := a
			ca.Params.BodyHashSourceAllNames = append([]string(nil), a.Params.BodyHashSourceAllNames...)
			c.Attempts[i] = ca
		}
	}
	return c
}

// BuildBodyHashCandidates derives the body forms a signer may have hashed:
// the raw bytes, trailing-newline and whitespace variations, CRLF conversion,
// and, when the body parses as JSON, the common serializer conventions with
// the original member order preserved. Forms that hash identically collapse
// into one candidate listing every source name, and the result is sorted by
// name. The second return value is the JSON parse error when the body is not
// JSON, for logging.
func BuildBodyHashCandidates(body []byte) ([]BodyHashCandidate, string) {
	type form struct {
		name string
		data []byte
	}
	forms := []form{{"raw_body", body}}
	if bytes.HasSuffix(body, []byte("\n")) {
		forms = append(forms, form{"raw_body_strip_last_lf", body[:len(body)-1]})
	} else {
		forms = append(forms, form{"raw_body_plus_lf", append(append([]byte(nil), body...), '\n')})
	}
	if stripped := bytes.TrimRight(body, " \t\r\n"); !bytes.Equal(stripped, body) {
		forms = append(forms, form{"raw_body_rstrip_whitespace", stripped})
	}
	if bytes.Contains(body, []byte("\r\n")) {
		forms = append(forms, form{"raw_body_crlf_to_lf", bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))})
	}

	jsonParseErr := ""
	if parsed, err := parseOrderedJSON(body); err != nil {
		jsonParseErr = err.Error()
	} else {
		forms = append(forms,
			form{"json_default", encodeOrderedJSON(parsed, jsonEncodeOptions{itemSep: ", ", kvSep: ": ", escapeNonASCII: true})},
			form{"json_ensure_ascii_false", encodeOrderedJSON(parsed, jsonEncodeOptions{itemSep: ", ", kvSep: ": "})},
			form{"json_compact", encodeOrderedJSON(parsed, jsonEncodeOptions{itemSep: ",", kvSep: ":"})},
			form{"json_compact_sort_keys", encodeOrderedJSON(parsed, jsonEncodeOptions{itemSep: ",", kvSep: ":", sortKeys: true})},
		)
	}

	seen := make(map[string]*BodyHashCandidate)
	var candidates []*BodyHashCandidate
	for _, f := range forms {
		digest := SHA256Base64(f.data)
		if existing, ok := seen[digest]; ok {
			existing.SourceNames = append(existing.SourceNames, f.name)
			continue
		}
		c := &BodyHashCandidate{
			Name:        f.name,
			SourceNames: []string{f.name},
			BodyLen:     len(f.data),
			BodySHA256:  digest,
			BodyPreview: previewText(f.data, candidatePreviewLimit),
		}
		seen[digest] = c
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	out := make([]BodyHashCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = *c
	}
	return out, jsonParseErr
}

// DiagnoseMismatch replays the failed verification under alternate
// canonicalization variants paired with every body hash candidate. The first
// passing attempt is reported as the match, but every attempt runs so the
// full picture lands in the audit log.
func DiagnoseMismatch(certPEM, signatureB64, algorithm, ts, nonce, agentName, certAgentName, method, path, rawQuery string, candidates []BodyHashCandidate) *Diagnosis {
	type variant struct {
		name            string
		agentName       string
		method          string
		path            string
		lineEnding      string
		uppercaseMethod bool
	}

	variants := []variant{
		{name: "current_rule", agentName: agentName, method: method, path: path, lineEnding: "\n", uppercaseMethod: true},
	}
	if rawQuery != "" {
		variants = append(variants, variant{name: "path_with_query", agentName: agentName, method: method, path: path + "?" + rawQuery, lineEnding: "\n", uppercaseMethod: true})
	}
	variants = append(variants,
		variant{name: "method_not_upper", agentName: agentName, method: method, path: path, lineEnding: "\n", uppercaseMethod: false},
		variant{name: "crlf_line_endings", agentName: agentName, method: method, path: path, lineEnding: "\r\n", uppercaseMethod: true},
	)
	if certAgentName != "" && certAgentName != agentName {
		variants = append(variants, variant{name: "cert_agent_name", agentName: certAgentName, method: method, path: path, lineEnding: "\n", uppercaseMethod: true})
	}

	// variants collapsing to the same message inputs run once
	type variantKey struct {
		agentName, method, path, lineEnding string
		uppercaseMethod                     bool
	}
	seen := make(map[variantKey]bool)
	unique := make([]variant, 0, len(variants))
	for _, v := range variants {
		k := variantKey{v.agentName, v.method, v.path, v.lineEnding, v.uppercaseMethod}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, v)
	}

	d := &Diagnosis{}
	for _, v := range unique {
		for _, c := range candidates {
			message := buildMessageVariant(ts, nonce, v.agentName, v.method, v.path, c.BodySHA256, v.lineEnding, v.uppercaseMethod)
			ok, reason := VerifySignature(certPEM, signatureB64, algorithm, message)
			attempt := DiagnosisAttempt{
				Variant: v.name,
				OK:      ok,
				Params: DiagnosisParams{
					AgentName:              v.agentName,
					Method:                 v.method,
					Path:                   v.path,
					LineEnding:             lineEndingLabel(v.lineEnding),
					UppercaseMethod:        v.uppercaseMethod,
					BodyHashSource:         c.Name,
					BodyHashSourceAllNames: append([]string(nil), c.SourceNames...),
					BodySHA256:             c.BodySHA256,
				},
				MessageSHA256: sha256Hex(message),
			}
			if !ok {
				attempt.Reason = reason
			}
			d.Attempts = append(d.Attempts, attempt)
			if ok && d.MatchedVariant == "" {
				d.MatchedVariant = v.name
				d.MatchedBodySource = c.Name
			}
		}
	}

	if d.MatchedVariant != "" {
		d.Summary = fmt.Sprintf("signature verifies under variant %q with body form %q; the signer canonicalizes differently than the current rule", d.MatchedVariant, d.MatchedBodySource)
	} else {
		d.Summary = "no variant matched; check that the signing key matches the bound certificate and that the hashed body bytes are the bytes sent"
	}
	return d
}

func lineEndingLabel(lineEnding string) string {
	if lineEnding == "\r\n" {
		return "crlf"
	}
	return "lf"
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// previewText decodes data for logging, replacing invalid UTF-8 and
// truncating to limit runes.
func previewText(data []byte, limit int) string {
	s := strings.ToValidUTF8(string(data), "�")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + fmt.Sprintf("...(truncated %d chars)", len(runes)-limit)
}
