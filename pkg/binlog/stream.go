package binlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

type StreamOption func(*Stream)

// WithRowFilter limits row decoding to table ids accepted by wanted; other rows events keep only their header
func WithRowFilter(wanted func(tableID uint64) bool) StreamOption {
	return func(s *Stream) {
		s.wanted = wanted
	}
}

func WithChecksumVerification(verify bool) StreamOption {
	return func(s *Stream) {
		s.verify = verify
	}
}

// Stream reads binlog events from a directory of binlog files, following rotations
type Stream struct {
	dir     string
	file    *os.File
	reader  *bufio.Reader
	parser  *replication.BinlogParser
	pos     mysql.Position
	wanted  func(uint64) bool
	verify  bool
	scanned int64
}

// OpenStream opens dir/name positioned at offset. The format description event is always
// read first so events past it decode with the right header lengths and checksum.
func OpenStream(dir, name string, offset uint32, opts ...StreamOption) (*Stream, error) {
	s := &Stream{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.open(name, offset); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) newParser() *replication.BinlogParser {
	parser := replication.NewBinlogParser()
	parser.SetParseTime(true)
	parser.SetUseDecimal(true)
	parser.SetTimestampStringLocation(time.UTC)
	parser.SetVerifyChecksum(s.verify)
	parser.SetRowsEventDecodeFunc(s.decodeRows)
	return parser
}

func (s *Stream) decodeRows(e *replication.RowsEvent, data []byte) error {
	pos, err := e.DecodeHeader(data)
	if s.wanted != nil && !s.wanted(e.TableID) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.DecodeData(pos, data)
}

func (s *Stream) open(name string, offset uint32) error {
	path := filepath.Join(s.dir, name)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("failed to open binlog file %s: %s", path, err)
	}

	magic := make([]byte, len(constants.BinlogMagic))
	if _, err := io.ReadFull(file, magic); err != nil || string(magic) != constants.BinlogMagic {
		file.Close()
		return fmt.Errorf("%s is not a binlog file", path)
	}

	s.parser = s.newParser()
	s.reader = bufio.NewReader(file)
	start := uint32(len(constants.BinlogMagic))
	if offset > start {
		ev, err := s.readEvent()
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to read format description event of %s: %s", path, err)
		}
		if ev.Header.EventType != replication.FORMAT_DESCRIPTION_EVENT {
			file.Close()
			return fmt.Errorf("expected format description event in %s, found %s", path, ev.Header.EventType)
		}
		if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
			file.Close()
			return fmt.Errorf("failed to seek %s to %d: %s", path, offset, err)
		}
		s.reader.Reset(file)
		start = offset
	}

	s.file = file
	s.pos = mysql.Position{Name: name, Pos: start}
	return nil
}

// readEvent returns io.EOF for a missing or partially written event
func (s *Stream) readEvent() (*replication.BinlogEvent, error) {
	header := make([]byte, replication.EventHeaderSize)
	if _, err := io.ReadFull(s.reader, header); err != nil {
		return nil, truncated(err)
	}
	size := binary.LittleEndian.Uint32(header[9:13])
	if size < replication.EventHeaderSize {
		return nil, fmt.Errorf("invalid event size %d", size)
	}

	data := make([]byte, size)
	copy(data, header)
	if _, err := io.ReadFull(s.reader, data[replication.EventHeaderSize:]); err != nil {
		return nil, truncated(err)
	}
	return s.parser.Parse(data)
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// Next returns the next event, or io.EOF once the last available file is exhausted
func (s *Stream) Next() (*RawEvent, error) {
	if s.file == nil {
		return nil, io.EOF
	}

	ev, err := s.readEvent()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse binlog event at %s: %w", s.pos, err)
	}
	s.scanned++

	raw := &RawEvent{File: s.pos.Name, Header: ev.Header, Event: ev.Event}
	if ev.Header.LogPos > 0 {
		s.pos.Pos = ev.Header.LogPos
	}

	switch e := ev.Event.(type) {
	case *replication.RotateEvent:
		if e.Position > math.MaxUint32 {
			return nil, fmt.Errorf("binlog position overflow: %d exceeds uint32 max value", e.Position)
		}
		if err := s.rotate(string(e.NextLogName), uint32(e.Position)); err != nil {
			return nil, err
		}
	default:
		if ev.Header.EventType == replication.STOP_EVENT {
			next, ok := nextFileName(s.pos.Name)
			if ok {
				if err := s.rotate(next, uint32(len(constants.BinlogMagic))); err != nil {
					return nil, err
				}
			}
		}
	}
	return raw, nil
}

// rotate switches to another file. A file that does not exist yet ends the stream
// with the position already pointing at it.
func (s *Stream) rotate(name string, offset uint32) error {
	if name == s.pos.Name {
		return nil
	}
	logger.Infof("binlog rotated to %s:%d", name, offset)
	s.closeFile()
	s.pos = mysql.Position{Name: name, Pos: offset}
	if err := s.open(name, offset); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			logger.Debugf("next binlog file %s is not available", name)
			return nil
		}
		return err
	}
	return nil
}

// nextFileName increments the numeric suffix of a binlog file name, keeping its width
func nextFileName(name string) (string, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	suffix := name[idx+1:]
	seq, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s.%0*d", name[:idx], len(suffix), seq+1), true
}

// Position is where the next event will be read from
func (s *Stream) Position() mysql.Position {
	return s.pos
}

// Scanned counts every event read so far
func (s *Stream) Scanned() int64 {
	return s.scanned
}

func (s *Stream) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}

func (s *Stream) Close() error {
	return s.closeFile()
}
