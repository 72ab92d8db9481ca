package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/safeconv"
)

// ErrCorruptEventLog indicates an event-log frame that cannot be read back.
var ErrCorruptEventLog = errors.New("corrupt event log")

// Event logs are sequences of LZ4-compressed frames, each holding one wire
// envelope: a fixed header of (raw length, compressed length) followed by the
// compressed block. Raw length is needed to size the decompression buffer.
const frameHeaderSize = 8

// Recorder appends wire events to an LZ4-compressed event log, enabling
// deterministic offline replay of a live session.
type Recorder struct {
	w io.Writer
}

// NewRecorder creates a recorder writing frames to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record appends one event to the log.
func (rec *Recorder) Record(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	return rec.writeFrame(data)
}

// RecordRaw appends one already-encoded wire envelope to the log.
func (rec *Recorder) RecordRaw(data []byte) error {
	return rec.writeFrame(data)
}

func (rec *Recorder) writeFrame(data []byte) error {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return fmt.Errorf("compress frame: %w", err)
	}

	if written == 0 {
		// Incompressible: store raw, signalled by compressed length zero.
		return rec.emit(data, nil)
	}

	return rec.emit(data, compressed[:written])
}

func (rec *Recorder) emit(raw, compressed []byte) error {
	var header [frameHeaderSize]byte

	binary.LittleEndian.PutUint32(header[0:4], safeconv.MustIntToUint32(len(raw)))
	binary.LittleEndian.PutUint32(header[4:8], safeconv.MustIntToUint32(len(compressed)))

	_, err := rec.w.Write(header[:])
	if err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}

	body := compressed
	if body == nil {
		body = raw
	}

	_, err = rec.w.Write(body)
	if err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}

	return nil
}

// Replayer reads events back from a recorded log in order.
type Replayer struct {
	r io.Reader
}

// NewReplayer creates a replayer reading frames from r.
func NewReplayer(r io.Reader) *Replayer {
	return &Replayer{r: r}
}

// Next returns the next recorded event, or io.EOF at the end of the log.
func (rep *Replayer) Next() (Event, error) {
	data, err := rep.readFrame()
	if err != nil {
		return nil, err
	}

	return Decode(data)
}

// Replay dispatches every remaining event to the handler.
func (rep *Replayer) Replay(handler Handler) error {
	for {
		ev, err := rep.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		handler(ev)
	}
}

func (rep *Replayer) readFrame() ([]byte, error) {
	var header [frameHeaderSize]byte

	_, err := io.ReadFull(rep.r, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("%w: short header: %w", ErrCorruptEventLog, err)
	}

	rawLen := safeconv.MustUint32ToInt(binary.LittleEndian.Uint32(header[0:4]))
	compLen := safeconv.MustUint32ToInt(binary.LittleEndian.Uint32(header[4:8]))

	if compLen == 0 {
		raw := make([]byte, rawLen)

		_, err = io.ReadFull(rep.r, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: short raw frame: %w", ErrCorruptEventLog, err)
		}

		return raw, nil
	}

	compressed := make([]byte, compLen)

	_, err = io.ReadFull(rep.r, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: short frame body: %w", ErrCorruptEventLog, err)
	}

	raw := make([]byte, rawLen)

	n, err := lz4.UncompressBlock(compressed, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptEventLog, err)
	}

	if n != rawLen {
		return nil, fmt.Errorf("%w: frame length mismatch", ErrCorruptEventLog)
	}

	return raw, nil
}
