package frame

import (
	"errors"
	"io"
	"mime"

	"github.com/ugorji/go/codec"
)

// Format indicates which wire encoding is desired
type Format int

const (
	JSON Format = iota
	Msgpack
)

// ErrorInvalidContentType indicates a Content-Type header that maps to no
// supported frame encoding.
var ErrorInvalidContentType = errors.New("frame: invalid content type")

var (
	// handles contains the canonical codec.Handle for each Format, in order
	// of the Format constants.  Both handles read the json struct tags so a
	// single tag set describes the wire shape in either encoding.
	handles = []codec.Handle{
		&codec.JsonHandle{
			BasicHandle: codec.BasicHandle{
				TypeInfos: codec.NewTypeInfos([]string{"json"}),
			},
			IntegerAsString: 'L',
		},
		&codec.MsgpackHandle{
			BasicHandle: codec.BasicHandle{
				TypeInfos: codec.NewTypeInfos([]string{"json"}),
			},
		},
	}

	contentTypes = []string{
		"application/json",
		"application/msgpack",
	}
)

// handle looks up the appropriate codec.Handle for this format constant.
// This method returns nil if the format value is invalid.
func (f Format) handle() codec.Handle {
	if int(f) < len(handles) {
		return handles[f]
	}

	return nil
}

// ContentType returns the MIME type served and accepted for this format.
func (f Format) ContentType() string {
	if int(f) < len(contentTypes) {
		return contentTypes[f]
	}

	return "application/octet-stream"
}

// FormatFromContentType returns the Format corresponding to a Content-Type
// header value.  A missing or empty header selects JSON.
func FormatFromContentType(contentType string) (Format, error) {
	if len(contentType) == 0 {
		return JSON, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Format(-1), ErrorInvalidContentType
	}

	for f, candidate := range contentTypes {
		if candidate == mediaType {
			return Format(f), nil
		}
	}

	return Format(-1), ErrorInvalidContentType
}

// Encoder represents the underlying ugorji behavior the frame package supports
type Encoder interface {
	Encode(interface{}) error
	Reset(io.Writer)
	ResetBytes(*[]byte)
}

// Decoder represents the underlying ugorji behavior the frame package supports
type Decoder interface {
	Decode(interface{}) error
	Reset(io.Reader)
	ResetBytes([]byte)
}

// NewEncoder produces a ugorji Encoder configured for the given format
func NewEncoder(output io.Writer, f Format) Encoder {
	return codec.NewEncoder(output, f.handle())
}

// NewEncoderBytes produces a ugorji Encoder configured for the given format
func NewEncoderBytes(output *[]byte, f Format) Encoder {
	return codec.NewEncoderBytes(output, f.handle())
}

// NewDecoder produces a ugorji Decoder configured for the given format
func NewDecoder(input io.Reader, f Format) Decoder {
	return codec.NewDecoder(input, f.handle())
}

// NewDecoderBytes produces a ugorji Decoder configured for the given format
func NewDecoderBytes(input []byte, f Format) Decoder {
	return codec.NewDecoderBytes(input, f.handle())
}
