package binlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

// Session is a pull-based read over [From, To) of a binlog directory, decoded against one snapshot.
// It is not safe for concurrent use.
type Session struct {
	ID       string
	opts     *ReadOptions
	stream   *Stream
	resolver *Resolver
	decoder  *Decoder
	filter   *Filter
	script   Script
	pending  []*types.RowChange
	cursor   mysql.Position
	done     bool
	err      error

	// open statement: first table map offset, and whether any of its rows events was read
	inStatement bool
	statement   mysql.Position
	rowsRead    bool
}

func NewSession(opts *ReadOptions, snapshot *types.SchemaSnapshot, script Script) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("schema snapshot is required")
	}
	if opts.To != nil {
		path := filepath.Join(opts.Dir, opts.To.Name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("failed to stat binlog file %s: %s", path, err)
		}
	}

	filter := NewFilter(opts)
	resolver := NewResolver(snapshot, filter.Excludes)
	stream, err := OpenStream(opts.Dir, opts.From.Name, opts.From.Pos,
		WithRowFilter(resolver.Resolved), WithChecksumVerification(opts.VerifyChecksum))
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:       utils.ULID(),
		opts:     opts,
		stream:   stream,
		resolver: resolver,
		decoder:  NewDecoder(opts.CharsetFallback),
		filter:   filter,
		script:   script,
		cursor:   opts.From,
	}
	if opts.To != nil && opts.From.Compare(*opts.To) >= 0 {
		session.done = true
	}
	logger.Infof("session[%s] reading %s from %s against schema %s", session.ID, opts.Dir, opts.From, snapshot.Token())
	return session, nil
}

// Next returns the next yielded row, or io.EOF when the session is over. Once the row limit
// is reached the rest of the current statement is still yielded; the session stops at the
// next table map and the cursor points at it. An error ends the session: every later call
// returns the same error.
func (s *Session) Next() (*types.RowChange, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		if err := s.advance(); err != nil {
			s.err = err
			s.done = true
			s.pending = nil
			return nil, err
		}
	}

	change := s.pending[0]
	s.pending = s.pending[1:]
	return change, nil
}

func (s *Session) advance() error {
	before := s.stream.Position()
	if s.opts.To != nil && before.Compare(*s.opts.To) >= 0 {
		// rows already read from an open statement are finished past the end position
		if !s.inStatement {
			s.finish(before)
			return nil
		}
		if !s.rowsRead {
			s.finish(s.statement)
			return nil
		}
	}

	ev, err := s.stream.Next()
	if err == io.EOF {
		s.finish(utils.Ternary(s.inStatement && !s.rowsRead, s.statement, s.stream.Position()))
		return nil
	}
	if err != nil {
		return err
	}

	switch e := ev.Event.(type) {
	case *replication.TableMapEvent:
		if s.filter.LimitReached() {
			s.finish(before)
			return nil
		}
		if !s.inStatement {
			s.inStatement, s.statement, s.rowsRead = true, before, false
		}
		if _, err := s.resolver.Resolve(e); err != nil {
			logger.Errorf("session[%s] stopped at %s: %s", s.ID, before, err)
			return err
		}
	case *replication.RowsEvent:
		s.rowsRead = true
		if e.Flags&replication.RowsEventStmtEndFlag != 0 {
			s.inStatement = false
		}
		mapping, found := s.resolver.Lookup(e.TableID)
		if !found {
			break
		}
		changes, err := s.decoder.Decode(ev, mapping)
		if err != nil {
			return fmt.Errorf("failed to decode rows at %s: %w", before, err)
		}
		if err := s.collect(changes); err != nil {
			return err
		}
	}
	s.cursor = s.stream.Position()
	return nil
}

func (s *Session) collect(changes []*types.RowChange) error {
	for _, change := range changes {
		if s.script != nil {
			action, err := s.script.Process(change)
			if err != nil {
				return fmt.Errorf("script failed on `%s`: %w", change.Table, err)
			}
			if action == Suppress {
				continue
			}
		}
		if !s.filter.Match(change) {
			continue
		}
		s.filter.Count()
		s.pending = append(s.pending, change)
	}
	return nil
}

func (s *Session) finish(pos mysql.Position) {
	s.cursor = pos
	s.done = true
	logger.Infof("session[%s] finished at %s after %d events, %d rows yielded", s.ID, pos, s.stream.Scanned(), s.filter.Processed())
}

// Cursor is the resume point: only meaningful once Next has returned io.EOF
func (s *Session) Cursor() Cursor {
	return Cursor{Position: s.cursor, Processed: s.filter.Processed(), SessionID: s.ID}
}

// Scanned counts binlog events read, including skipped ones
func (s *Session) Scanned() int64 {
	return s.stream.Scanned()
}

func (s *Session) Close() error {
	return s.stream.Close()
}

// ReadBinlog drains a session into fn and returns its cursor
func ReadBinlog(opts *ReadOptions, snapshot *types.SchemaSnapshot, script Script, fn OnChange) (cursor Cursor, err error) {
	session, err := NewSession(opts, snapshot, script)
	if err != nil {
		return Cursor{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		change, err := session.Next()
		if err == io.EOF {
			return session.Cursor(), nil
		}
		if err != nil {
			return session.Cursor(), err
		}
		if err := fn(change); err != nil {
			return session.Cursor(), err
		}
	}
}
