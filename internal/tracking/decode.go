package tracking

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Frame is one message received from the feed.
type Frame struct {
	Binary bool
	Data   []byte
}

// TextFrame builds a textual frame.
func TextFrame(s string) Frame {
	return Frame{Data: []byte(s)}
}

// DecodeError reports a frame that could not be turned into a Reading.
// It is never fatal to ingestion.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode frame: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeFrame turns a raw feed frame into a validated Reading.
//
// Text frames that are JSON objects with a "data" field carry a hex encoded
// payload; if the hex cannot be decoded the field value is used as is.
// Any other text frame is used verbatim as the payload. Binary frames must be
// valid UTF-8. The payload is "lat,lon,timestamp[,...]".
func DecodeFrame(f Frame) (Reading, error) {
	payload, err := framePayload(f)
	if err != nil {
		return Reading{}, err
	}

	parts := strings.Split(payload, ",")
	if len(parts) < 3 {
		return Reading{}, &DecodeError{Reason: "expected at least 3 comma separated fields, got " + strconv.Itoa(len(parts))}
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Reading{}, &DecodeError{Reason: "latitude", Err: err}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Reading{}, &DecodeError{Reason: "longitude", Err: err}
	}

	r := Reading{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: strings.TrimSpace(parts[2]),
	}
	if err := r.Validate(); err != nil {
		return Reading{}, &DecodeError{Reason: "range", Err: err}
	}
	return r, nil
}

func framePayload(f Frame) (string, error) {
	if f.Binary {
		if !utf8.Valid(f.Data) {
			return "", &DecodeError{Reason: "binary frame is not valid utf-8"}
		}
		return string(f.Data), nil
	}

	text := string(f.Data)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &envelope); err != nil {
		// Not a JSON object; the frame itself is the payload.
		return text, nil
	}
	raw, ok := envelope["data"]
	if !ok {
		return text, nil
	}

	var data string
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", &DecodeError{Reason: "data field is not a string", Err: err}
	}
	return hexToASCII(data), nil
}

// hexToASCII decodes a hex string into text, returning the input unchanged
// when it is not valid hex or does not decode to UTF-8.
func hexToASCII(s string) string {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || !utf8.Valid(b) {
		return s
	}
	return string(b)
}
