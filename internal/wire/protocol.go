// Package wire implements the session's length-delimited binary
// framing: a 4-byte little-endian length prefix followed by one
// message per frame. A request frame leads with a field-presence
// bitmask so a single message may combine any of its fields (a client
// can replace the script and feed audio in one round trip); a response
// frame is a tagged union. There is no generated protobuf here — the
// message set is small and fixed, and hand-rolled framing keeps the
// wire format dependency-free while still giving every field an
// explicit, versioned binary layout.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// Request field-presence bits: the leading byte of a request payload
// is a bitmask naming which fields follow, in bit order.
const (
	fieldHandshake     byte = 1 << 0
	fieldTextData      byte = 1 << 1
	fieldAudioData     byte = 1 << 2
	fieldMatcherParams byte = 1 << 3
	fieldUserData      byte = 1 << 4

	knownRequestFields = fieldHandshake | fieldTextData | fieldAudioData | fieldMatcherParams | fieldUserData
)

// Response tags.
const (
	TagRecognitionResult byte = 1
	TagError             byte = 2
	TagResponseUserData  byte = 3
)

// Codec names the PCM decoding applied to audio_data.data before it
// reaches the recognizer.
type Codec byte

const (
	CodecPCMFloat32LE Codec = 0
	CodecG711ULaw     Codec = 1
	CodecG711ALaw     Codec = 2
	CodecWAV          Codec = 3
)

// AudioMeta carries the sample rate and codec for one audio_data
// frame.
type AudioMeta struct {
	SampleRate uint32
	Codec      Codec
}

// MatcherParams are client-overridable matcher tuning knobs; a nil
// pointer field means "leave unchanged."
type MatcherParams struct {
	LookAhead      *uint32
	MinMatchWeight *float32
}

// Request is the decoded form of one client message. Any combination
// of fields may be populated; nil means the field was absent from the
// frame.
type Request struct {
	Handshake     *string
	TextData      *string
	TextPos       uint32
	AudioMeta     AudioMeta
	AudioData     []byte
	MatcherParams *MatcherParams
	UserData      []byte
}

// HasAudio reports whether this request carries an audio_data field.
func (r *Request) HasAudio() bool { return r.AudioData != nil }

// Response is the encoded form of one server message.
type Response struct {
	RecognitionResult *uint32
	ErrorCode         int32
	ErrorWhat         string
	IsError           bool
	UserData          []byte
}

const maxFrameLen = 64 << 20 // 64MiB; guards against a corrupt length prefix

// ReadRequest reads one length-delimited frame from r and decodes it
// as a Request. A truncated or unparsable frame is reported as
// InvalidInput and a length prefix over maxFrameLen as
// ResourceExhausted; an EOF before the length prefix is returned as is.
func ReadRequest(r io.Reader) (*Request, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return decodeRequest(payload)
}

// WriteResponse encodes resp and writes it as one length-delimited
// frame to w.
func WriteResponse(w io.Writer, resp *Response) error {
	payload := encodeResponse(resp)
	return writeFrame(w, payload)
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err // EOF/connection close propagates as-is
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, trueerr.New(trueerr.ResourceExhausted, fmt.Sprintf("frame length %d exceeds max %d", n, maxFrameLen))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, trueerr.Wrap(trueerr.InvalidInput, "truncated frame", err)
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// cursor walks a byte slice with bounds-checked reads, converting any
// short read into an InvalidInput error.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) byte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, trueerr.New(trueerr.InvalidInput, "unexpected end of frame")
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) uint32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, trueerr.New(trueerr.InvalidInput, "unexpected end of frame")
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) float32() (float32, error) {
	v, err := c.uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, trueerr.New(trueerr.InvalidInput, "unexpected end of frame")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) lenPrefixedBytes() ([]byte, error) {
	n, err := c.uint32()
	if err != nil {
		return nil, err
	}
	return c.bytes(int(n))
}

func (c *cursor) lenPrefixedString() (string, error) {
	b, err := c.lenPrefixedBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) optionalUint32(present bool) (*uint32, error) {
	if !present {
		return nil, nil
	}
	v, err := c.uint32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeRequest parses a single request payload (without its length
// prefix). Exposed for transports, such as WebSocket, that already
// frame messages and so have no need for ReadRequest's length prefix.
func DecodeRequest(payload []byte) (*Request, error) {
	return decodeRequest(payload)
}

// EncodeResponse serializes resp into a single frame payload (without
// its length prefix). Exposed for transports that already frame
// messages.
func EncodeResponse(resp *Response) []byte {
	return encodeResponse(resp)
}

func decodeRequest(payload []byte) (*Request, error) {
	c := &cursor{buf: payload}
	mask, err := c.byte()
	if err != nil {
		return nil, err
	}
	if mask&^knownRequestFields != 0 {
		return nil, trueerr.New(trueerr.InvalidInput, fmt.Sprintf("unknown request fields in mask %#x", mask))
	}

	req := &Request{}
	if mask&fieldHandshake != 0 {
		name, err := c.lenPrefixedString()
		if err != nil {
			return nil, err
		}
		req.Handshake = &name
	}
	if mask&fieldTextData != 0 {
		text, err := c.lenPrefixedString()
		if err != nil {
			return nil, err
		}
		pos, err := c.uint32()
		if err != nil {
			return nil, err
		}
		req.TextData = &text
		req.TextPos = pos
	}
	if mask&fieldAudioData != 0 {
		sampleRate, err := c.uint32()
		if err != nil {
			return nil, err
		}
		codecByte, err := c.byte()
		if err != nil {
			return nil, err
		}
		data, err := c.lenPrefixedBytes()
		if err != nil {
			return nil, err
		}
		req.AudioMeta = AudioMeta{SampleRate: sampleRate, Codec: Codec(codecByte)}
		req.AudioData = data
	}
	if mask&fieldMatcherParams != 0 {
		hasLookAhead, err := c.byte()
		if err != nil {
			return nil, err
		}
		lookAhead, err := c.optionalUint32(hasLookAhead != 0)
		if err != nil {
			return nil, err
		}
		hasWeight, err := c.byte()
		if err != nil {
			return nil, err
		}
		var weight *float32
		if hasWeight != 0 {
			w, err := c.float32()
			if err != nil {
				return nil, err
			}
			weight = &w
		}
		req.MatcherParams = &MatcherParams{LookAhead: lookAhead, MinMatchWeight: weight}
	}
	if mask&fieldUserData != 0 {
		data, err := c.lenPrefixedBytes()
		if err != nil {
			return nil, err
		}
		req.UserData = append(make([]byte, 0, len(data)), data...)
	}
	return req, nil
}

func encodeResponse(resp *Response) []byte {
	var buf []byte
	putUint32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putInt32 := func(v int32) { putUint32(uint32(v)) }
	putString := func(s string) {
		putUint32(uint32(len(s)))
		buf = append(buf, s...)
	}

	switch {
	case resp.IsError:
		buf = append(buf, TagError)
		putInt32(resp.ErrorCode)
		putString(resp.ErrorWhat)
	case resp.RecognitionResult != nil:
		buf = append(buf, TagRecognitionResult)
		putUint32(*resp.RecognitionResult)
	default:
		buf = append(buf, TagResponseUserData)
		putUint32(uint32(len(resp.UserData)))
		buf = append(buf, resp.UserData...)
	}
	return buf
}

// DecodeResponse parses a single response payload (without its length
// prefix). Exposed for tests and any future Go client of this wire
// format.
func DecodeResponse(payload []byte) (*Response, error) {
	c := &cursor{buf: payload}
	tag, err := c.byte()
	if err != nil {
		return nil, err
	}
	resp := &Response{}
	switch tag {
	case TagError:
		code, err := c.uint32()
		if err != nil {
			return nil, err
		}
		what, err := c.lenPrefixedString()
		if err != nil {
			return nil, err
		}
		resp.IsError = true
		resp.ErrorCode = int32(code)
		resp.ErrorWhat = what
	case TagRecognitionResult:
		pos, err := c.uint32()
		if err != nil {
			return nil, err
		}
		resp.RecognitionResult = &pos
	case TagResponseUserData:
		data, err := c.lenPrefixedBytes()
		if err != nil {
			return nil, err
		}
		resp.UserData = append([]byte(nil), data...)
	default:
		return nil, trueerr.New(trueerr.InvalidInput, fmt.Sprintf("unknown response tag %d", tag))
	}
	return resp, nil
}

// EncodeRequest serializes req into a single frame payload (without
// its length prefix): a presence bitmask followed by every populated
// field in bit order. Exposed for tests and any future Go client.
func EncodeRequest(req *Request) []byte {
	var mask byte
	if req.Handshake != nil {
		mask |= fieldHandshake
	}
	if req.TextData != nil {
		mask |= fieldTextData
	}
	if req.AudioData != nil {
		mask |= fieldAudioData
	}
	if req.MatcherParams != nil {
		mask |= fieldMatcherParams
	}
	if req.UserData != nil {
		mask |= fieldUserData
	}

	buf := []byte{mask}
	putUint32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putString := func(s string) {
		putUint32(uint32(len(s)))
		buf = append(buf, s...)
	}
	putBytes := func(b []byte) {
		putUint32(uint32(len(b)))
		buf = append(buf, b...)
	}

	if req.Handshake != nil {
		putString(*req.Handshake)
	}
	if req.TextData != nil {
		putString(*req.TextData)
		putUint32(req.TextPos)
	}
	if req.AudioData != nil {
		putUint32(req.AudioMeta.SampleRate)
		buf = append(buf, byte(req.AudioMeta.Codec))
		putBytes(req.AudioData)
	}
	if req.MatcherParams != nil {
		if req.MatcherParams.LookAhead != nil {
			buf = append(buf, 1)
			putUint32(*req.MatcherParams.LookAhead)
		} else {
			buf = append(buf, 0)
		}
		if req.MatcherParams.MinMatchWeight != nil {
			buf = append(buf, 1)
			putUint32(math.Float32bits(*req.MatcherParams.MinMatchWeight))
		} else {
			buf = append(buf, 0)
		}
	}
	if req.UserData != nil {
		putBytes(req.UserData)
	}
	return buf
}
