package transport

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/timestamp"
)

// FrameKind distinguishes text (plain JSON) frames from binary (gzip) frames.
type FrameKind int

const (
	// FrameText carries a JSON object or array.
	FrameText FrameKind = iota
	// FrameBinary carries gzip-compressed JSON.
	FrameBinary
)

func (k FrameKind) String() string {
	if k == FrameBinary {
		return "binary"
	}
	return "text"
}

// Frame is one unit written to or read from a Conn.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// MaxDecodedFrameSize bounds how far a binary frame may inflate.
const MaxDecodedFrameSize = 16 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// EncodeBatch renders msgs as a single JSON object (one message) or a JSON
// array. When compress is set and the JSON exceeds threshold bytes, the frame
// is gzip-compressed and marked binary.
func EncodeBatch(msgs []*Message, compress bool, threshold int) (Frame, error) {
	if len(msgs) == 0 {
		return Frame{}, errors.WrapInvalid(errors.ErrInvalidData, "codec", "EncodeBatch", "empty batch")
	}

	var (
		data []byte
		err  error
	)
	if len(msgs) == 1 {
		data, err = json.Marshal(msgs[0])
	} else {
		data, err = json.Marshal(msgs)
	}
	if err != nil {
		return Frame{}, errors.WrapInvalid(err, "codec", "EncodeBatch", "marshal batch")
	}

	if !compress || len(data) <= threshold {
		return Frame{Kind: FrameText, Data: data}, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return Frame{}, errors.WrapFatal(err, "codec", "EncodeBatch", "gzip write")
	}
	if err := zw.Close(); err != nil {
		return Frame{}, errors.WrapFatal(err, "codec", "EncodeBatch", "gzip close")
	}
	return Frame{Kind: FrameBinary, Data: buf.Bytes()}, nil
}

// DecodeFrame parses a frame into messages. Binary frames that start with
// the gzip magic number are inflated first; anything else is read as JSON.
func DecodeFrame(f Frame) ([]*Message, error) {
	data := f.Data
	if f.Kind == FrameBinary && bytes.HasPrefix(data, gzipMagic) {
		inflated, err := gunzip(data)
		if err != nil {
			return nil, err
		}
		data = inflated
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "codec", "DecodeFrame", "empty frame")
	}

	var msgs []*Message
	if data[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"codec", "DecodeFrame", "unmarshal batch")
		}
		// A bad entry costs only itself, not its neighbours.
		for _, raw := range entries {
			var msg *Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			msgs = append(msgs, msg)
		}
	} else {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"codec", "DecodeFrame", "unmarshal message")
		}
		msgs = []*Message{&msg}
	}

	out := msgs[:0]
	for _, m := range msgs {
		if m != nil && m.Type != "" && timestamp.Validate(m.Timestamp) == nil {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "codec", "DecodeFrame", "no typed messages in frame")
	}
	return out, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
			"codec", "DecodeFrame", "open gzip stream")
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, MaxDecodedFrameSize+1))
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
			"codec", "DecodeFrame", "inflate frame")
	}
	if len(out) > MaxDecodedFrameSize {
		return nil, errors.WrapInvalid(errors.ErrResourceExhausted, "codec", "DecodeFrame", "inflated frame too large")
	}
	return out, nil
}
