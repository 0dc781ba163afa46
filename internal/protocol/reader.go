package protocol

import (
	"errors"
	"io"
)

const readSize = 4096

// Reader pulls frames from a response body, feeding each read into a Parser.
type Reader struct {
	r      io.Reader
	parser Parser
	buf    []byte
	queue  []Frame
	eof    bool
}

// NewReader creates a frame reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		buf: make([]byte, readSize),
	}
}

// Next blocks until the next frame is available. It returns io.EOF once the
// parser is done or the body is exhausted; any other error comes from the
// underlying reader.
func (r *Reader) Next() (Frame, error) {
	for len(r.queue) == 0 {
		if r.eof || r.parser.Done() {
			return nil, io.EOF
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.parser.Feed(r.buf[:n])...)
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			r.queue = append(r.queue, r.parser.Finish()...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	f := r.queue[0]
	r.queue = r.queue[1:]
	return f, nil
}
