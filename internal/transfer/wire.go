package transfer

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Status tells the fetching side what follows the response header.
type Status uint64

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

const (
	maxRequestSize = 4096
	maxHeaderSize  = 64

	fieldName   protowire.Number = 1
	fieldStatus protowire.Number = 1
	fieldSize   protowire.Number = 2
)

var ErrBadMessage = errors.New("bad transfer message")

// header precedes the file bytes on every response.
type header struct {
	Status Status
	Size   int64
}

func marshalRequest(name string) []byte {
	b := protowire.AppendTag(nil, fieldName, protowire.BytesType)
	return protowire.AppendString(b, name)
}

func unmarshalRequest(b []byte) (string, error) {
	var name string
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldName && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			name = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty file name", ErrBadMessage)
	}
	return name, nil
}

func marshalHeader(h header) []byte {
	b := protowire.AppendTag(nil, fieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Status))
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(h.Size))
}

func unmarshalHeader(b []byte) (header, error) {
	var h header
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType || (num != fieldStatus && num != fieldSize) {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}
		if num == fieldStatus {
			h.Status = Status(v)
		} else {
			if v > 1<<62 {
				return 0, fmt.Errorf("%w: size %d", ErrBadMessage, v)
			}
			h.Size = int64(v)
		}
		return n, nil
	})
	return h, err
}

func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadMessage, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadMessage, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
