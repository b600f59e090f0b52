package util

import (
	"errors"
	"io"
)

// ErrPayloadTooLarge is returned by a LimitedReader when its limit has been exceeded.
var ErrPayloadTooLarge = errors.New("max bytes exceeded")

// LimitedReader is an io.ReadCloser that fails with ErrPayloadTooLarge if the underlying stream has
// more than MaxBytes bytes. The underlying stream is closed as soon as the limit is reached.
type LimitedReader struct {
	MaxBytes int64

	bytesRead  int64
	baseStream io.ReadCloser
	stream     *io.LimitedReader
}

// NewLimitedReader wraps a response body. If maxBytes is zero or less, the body is returned as is.
func NewLimitedReader(r io.ReadCloser, maxBytes int64) io.ReadCloser {
	if maxBytes <= 0 {
		return r
	}
	// one extra byte tells a payload of exactly maxBytes apart from one that is too large
	return &LimitedReader{
		MaxBytes:   maxBytes,
		baseStream: r,
		stream:     io.LimitReader(r, maxBytes+1).(*io.LimitedReader),
	}
}

// BytesRead returns the number of bytes read so far.
func (lr *LimitedReader) BytesRead() int64 {
	return lr.bytesRead
}

func (lr *LimitedReader) Read(p []byte) (int, error) {
	n, err := lr.stream.Read(p)
	lr.bytesRead += int64(n)
	if lr.bytesRead > lr.MaxBytes {
		_ = lr.Close()
		return n, ErrPayloadTooLarge
	}
	return n, err
}

func (lr *LimitedReader) Close() error { //nolint:golint
	return lr.baseStream.Close()
}
