package ts3query

import (
	"fmt"
	"strings"

	"github.com/consol-monitoring/check_teamspeak3/pkg/convert"
)

const (
	// Terminator ends every ServerQuery response line, reversed from the usual CR LF.
	Terminator = "\n\r"

	// SuccessMarker is contained in every successful response.
	SuccessMarker = "error id=0 msg=ok"

	// NoErrorID is used as ErrorID when the response contains no error line at all.
	NoErrorID = int64(-1)
)

// Fields contains the decoded key=value pairs of a response.
type Fields map[string]string

// Unescaped returns the value of key with ServerQuery escapes resolved.
func (f Fields) Unescaped(key string) (string, bool) {
	val, ok := f[key]
	if !ok {
		return "", false
	}

	return Unescape(val), true
}

// Int64 returns a numeric field as integer, fractions are truncated.
func (f Fields) Int64(key string) (int64, error) {
	val, err := f.numeric(key)
	if err != nil {
		return 0, err
	}

	num, err := convert.Int64E(val)
	if err != nil {
		return 0, &FieldError{Key: key, Value: val, Err: ErrFieldNotNumeric}
	}

	return num, nil
}

// Float64 returns a numeric field as float.
func (f Fields) Float64(key string) (float64, error) {
	val, err := f.numeric(key)
	if err != nil {
		return 0, err
	}

	num, err := convert.Float64E(val)
	if err != nil {
		return 0, &FieldError{Key: key, Value: val, Err: ErrFieldNotNumeric}
	}

	return num, nil
}

func (f Fields) numeric(key string) (string, error) {
	val, ok := f[key]
	if !ok {
		return "", &FieldError{Key: key, Err: ErrFieldMissing}
	}
	if !convert.IsNumeric(val) {
		return "", &FieldError{Key: key, Value: val, Err: ErrFieldNotNumeric}
	}

	return val, nil
}

// Response is a decoded ServerQuery reply.
type Response struct {
	Succeeded    bool
	Fields       Fields
	Raw          string
	ErrorID      int64
	ErrorMessage string
}

// Decode parses a raw reply. Fields are only extracted from successful replies,
// everything else keeps the raw text for diagnostics.
func Decode(raw string) *Response {
	res := &Response{
		Fields:  Fields{},
		Raw:     raw,
		ErrorID: NoErrorID,
	}
	res.parseErrorLine()

	if !strings.Contains(raw, SuccessMarker) {
		return res
	}
	res.Succeeded = true

	payload := strings.Replace(raw, Terminator+SuccessMarker+Terminator, "", 1)
	for _, token := range strings.Split(payload, " ") {
		key, _, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		// strip the prefix instead of taking the part after "=", values may contain "=" too
		res.Fields[key] = strings.TrimPrefix(token, key+"=")
	}

	return res
}

// parseErrorLine extracts id and msg of the last "error id=" line.
func (r *Response) parseErrorLine() {
	idx := strings.LastIndex(r.Raw, "error id=")
	if idx == -1 {
		return
	}

	line := r.Raw[idx:]
	if end := strings.IndexAny(line, "\r\n"); end != -1 {
		line = line[:end]
	}

	for _, token := range strings.Split(line, " ") {
		key, val, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		switch key {
		case "id":
			id, err := convert.Int64E(val)
			if err == nil {
				r.ErrorID = id
			}
		case "msg":
			r.ErrorMessage = Unescape(val)
		}
	}
}

// ErrorString returns a short description of a failed response.
func (r *Response) ErrorString() string {
	if r.ErrorID != NoErrorID {
		return fmt.Sprintf("id=%d msg=%s", r.ErrorID, r.ErrorMessage)
	}

	raw := strings.TrimSpace(r.Raw)
	if raw == "" {
		return "empty response"
	}

	return raw
}

// RawTrimmed returns the raw reply without surrounding line breaks.
func (r *Response) RawTrimmed() string {
	return strings.TrimSpace(r.Raw)
}
