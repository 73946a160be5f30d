package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// millisThreshold separates unix seconds from unix milliseconds. Second
// timestamps stay below it until the year 33658.
const millisThreshold = 1e12

// maxEpochMillis is 9999-12-31T23:59:59.999Z. Larger epochs do not fit a
// timestamp column and overflow the int64 conversion.
const maxEpochMillis = 253402300799999

// timestamp accepts RFC 3339 strings and unix epoch numbers. Null or an empty
// string leaves it zero.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q is not RFC 3339", s)
		}
		t.Time = parsed.UTC()
		return nil
	}

	var epoch float64
	if err := json.Unmarshal(b, &epoch); err != nil {
		return fmt.Errorf("timestamp must be an RFC 3339 string or unix seconds")
	}
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) || epoch < 0 || epoch > maxEpochMillis {
		return fmt.Errorf("timestamp %v out of range", epoch)
	}
	if epoch >= millisThreshold {
		t.Time = time.UnixMilli(int64(epoch)).UTC()
		return nil
	}
	sec, frac := math.Modf(epoch)
	t.Time = time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	return nil
}

// code is an error code that devices send either as a string or a number.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = code(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("error code must be a string or a number")
	}
	*c = code(n.String())
	return nil
}

// resultError is either {"code": ..., "message": ...} or a bare message string.
type resultError struct {
	Code    code
	Message string
}

func (e *resultError) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.Message)
	}

	var obj struct {
		Code    code   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("error must be a string or an object with code and message")
	}
	e.Code, e.Message = obj.Code, obj.Message
	return nil
}
