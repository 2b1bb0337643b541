package packet

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
)

// Reader reads framed packets from a stream. Bytes before a sync marker are
// skipped, so a reader recovers from garbage between packets.
type Reader struct {
	r       *bufio.Reader
	skipped int
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// Skipped counts the bytes dropped while looking for sync markers.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) sync() error {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		if b != Sync1 {
			r.skipped++
			continue
		}
		next, err := r.r.Peek(1)
		if err != nil {
			return err
		}
		if next[0] != Sync2 {
			r.skipped++
			continue
		}
		_, err = r.r.ReadByte()
		return err
	}
}

// Read returns the next packet. ErrBadCRC, ErrBadLength and ErrUnknownType
// only concern the packet just read and the stream can be read further.
func (r *Reader) Read() (Header, Message, error) {
	if err := r.sync(); err != nil {
		return Header{}, nil, err
	}

	frame := make([]byte, HeaderSize)
	frame[0], frame[1] = Sync1, Sync2
	if _, err := io.ReadFull(r.r, frame[2:]); err != nil {
		return Header{}, nil, unexpected(err)
	}
	h := parseHeader(frame)

	rest := make([]byte, int(h.Length)+CRCSize)
	if _, err := io.ReadFull(r.r, rest); err != nil {
		return h, nil, unexpected(err)
	}
	body := rest[:h.Length]
	frame = append(frame, body...)
	if crc32.ChecksumIEEE(frame) != le.Uint32(rest[h.Length:]) {
		return h, nil, ErrBadCRC
	}

	m, err := Decode(h.Type, body)
	return h, m, err
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Recoverable reports whether reading can go on after err.
func Recoverable(err error) bool {
	return errors.Is(err, ErrBadCRC) || errors.Is(err, ErrBadLength) || errors.Is(err, ErrUnknownType)
}
