// Package capture loads and saves classic pcap files as a whole.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"io"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrFileAccess = errors.New("file access")
	ErrParse      = errors.New("not a valid capture")
)

const magicNanoseconds = 0xa1b23c4d

// Frame is one captured packet: its capture metadata and raw link-layer bytes.
type Frame struct {
	Info gopacket.CaptureInfo
	Data []byte
}

type Capture struct {
	LinkType   layers.LinkType
	Snaplen    uint32
	// Resolution is time.Nanosecond or time.Microsecond, as in the file header.
	Resolution time.Duration
	Frames     []Frame
}

func (c *Capture) String() string {
	return fmt.Sprintf("Capture(%s, snaplen: %d, frames: %d)", c.LinkType, c.Snaplen, len(c.Frames))
}

// Load reads every frame of the pcap file at path into memory.
func Load(path string) (*Capture, error) {
	open, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	defer open.Close()
	return Read(open)
}

func Read(reader io.Reader) (*Capture, error) {
	buffered := bufio.NewReader(reader)
	magic, err := buffered.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	r, err := pcapgo.NewReader(buffered)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	c := &Capture{
		LinkType:   r.LinkType(),
		Snaplen:    r.Snaplen(),
		Resolution: resolution(magic),
		Frames:     make([]Frame, 0),
	}
	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			return c, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrParse, len(c.Frames), err)
		}
		c.Frames = append(c.Frames, Frame{Info: ci, Data: data})
	}
}

// resolution reads the timestamp unit from the file magic, in either byte
// order. pcapgo's own Reader.Resolution reports it the wrong way round.
func resolution(magic []byte) time.Duration {
	if binary.LittleEndian.Uint32(magic) == magicNanoseconds || binary.BigEndian.Uint32(magic) == magicNanoseconds {
		return time.Nanosecond
	}
	return time.Microsecond
}

// Save writes the capture to path. The file is built next to path and renamed
// into place, so a failed save leaves nothing at path.
func Save(path string, c *Capture) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = Write(tmp, c); err != nil {
		return err
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	return nil
}

func Write(writer io.Writer, c *Capture) error {
	buffered := bufio.NewWriter(writer)
	var w *pcapgo.Writer
	if c.Resolution == time.Nanosecond {
		w = pcapgo.NewWriterNanos(buffered)
	} else {
		w = pcapgo.NewWriter(buffered)
	}
	if err := w.WriteFileHeader(c.snaplen(), c.LinkType); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	for i, frame := range c.Frames {
		if err := w.WritePacket(frame.Info, frame.Data); err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrFileAccess, i, err)
		}
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	return nil
}

// snaplen never drops below the largest frame, since rewritten frames can
// outgrow the snap length recorded in the input.
func (c *Capture) snaplen() uint32 {
	snaplen := c.Snaplen
	for _, frame := range c.Frames {
		if uint32(frame.Info.CaptureLength) > snaplen {
			snaplen = uint32(frame.Info.CaptureLength)
		}
	}
	return snaplen
}
