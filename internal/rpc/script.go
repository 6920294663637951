package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"
)

// parseInvocation extracts callback name and argument from a script body of
// the form `name(<json>);`. Leading `/**/` guards are tolerated.
func parseInvocation(body []byte) (string, json.RawMessage, error) {
	script := bytes.TrimSpace(body)
	script = bytes.TrimPrefix(script, []byte("/**/"))
	script = bytes.TrimSpace(script)
	script = bytes.TrimRight(script, "; \t\r\n")

	open := bytes.IndexByte(script, '(')
	if open <= 0 || script[len(script)-1] != ')' {
		return "", nil, fmt.Errorf("response is not a callback invocation")
	}
	name := string(bytes.TrimSpace(script[:open]))
	if !isIdentifier(name) {
		return "", nil, fmt.Errorf("invalid callback name %q", name)
	}
	arg := bytes.TrimSpace(script[open+1 : len(script)-1])
	if !json.Valid(arg) {
		return "", nil, fmt.Errorf("callback %s argument is not JSON", name)
	}
	return name, json.RawMessage(arg), nil
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || r == '$' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// payloadFailure detects the {success:false, error} shape.
func payloadFailure(payload json.RawMessage) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var envelope struct {
		Success *bool           `json:"success"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil
	}
	if envelope.Success == nil || *envelope.Success {
		return nil
	}
	msg := ""
	if len(envelope.Error) > 0 {
		if err := json.Unmarshal(envelope.Error, &msg); err != nil {
			msg = string(envelope.Error)
		}
	}
	return &ServerError{Message: msg}
}
