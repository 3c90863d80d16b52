package sqlgen

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
)

type batchKey struct {
	position mysql.Position
	kind     types.ChangeType
	table    string
	channel  string
}

// Writer buffers the rows of one event and writes them as statements, one per line, to
// the output of their channel.
type Writer struct {
	open       func(channel string) (io.Writer, error)
	outputs    map[string]*bufio.Writer
	pending    []*types.RowChange
	key        batchKey
	statements int64
}

func NewWriter(open func(channel string) (io.Writer, error)) *Writer {
	return &Writer{open: open, outputs: make(map[string]*bufio.Writer)}
}

func channelOf(change *types.RowChange) string {
	if change.Channel == "" {
		return constants.DefaultChannel
	}
	return change.Channel
}

func (w *Writer) Write(change *types.RowChange) error {
	key := batchKey{position: change.Position, kind: change.Kind, table: change.Table, channel: channelOf(change)}
	if len(w.pending) > 0 && key != w.key {
		if err := w.flushPending(); err != nil {
			return err
		}
	}
	w.key = key
	w.pending = append(w.pending, change)
	return nil
}

func (w *Writer) flushPending() error {
	if len(w.pending) == 0 {
		return nil
	}
	statements, err := Render(w.pending)
	if err != nil {
		return err
	}
	w.pending = w.pending[:0]

	out, err := w.output(w.key.channel)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		if _, err := out.WriteString(statement + ";\n"); err != nil {
			return fmt.Errorf("failed to write to channel %s: %s", w.key.channel, err)
		}
		w.statements++
	}
	return nil
}

func (w *Writer) output(channel string) (*bufio.Writer, error) {
	if out, found := w.outputs[channel]; found {
		return out, nil
	}
	dest, err := w.open(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to open output for channel %s: %s", channel, err)
	}
	out := bufio.NewWriter(dest)
	w.outputs[channel] = out
	return out, nil
}

// Flush renders buffered rows and flushes every channel
func (w *Writer) Flush() error {
	if err := w.flushPending(); err != nil {
		return err
	}
	for channel, out := range w.outputs {
		if err := out.Flush(); err != nil {
			return fmt.Errorf("failed to flush channel %s: %s", channel, err)
		}
	}
	return nil
}

func (w *Writer) Statements() int64 {
	return w.statements
}

// Outputs maps channels to files: the default channel goes to base (stdout when base is empty)
// and every other channel to base.<channel>.
type Outputs struct {
	base   string
	stdout io.Writer
	files  []*os.File
}

func NewOutputs(base string, stdout io.Writer) *Outputs {
	return &Outputs{base: base, stdout: stdout}
}

func (o *Outputs) Open(channel string) (io.Writer, error) {
	if o.base == "" {
		if channel != constants.DefaultChannel {
			logger.Warnf("no output file configured, channel %s is written to stdout", channel)
		}
		return o.stdout, nil
	}

	path := utils.Ternary(channel == constants.DefaultChannel, o.base, o.base+"."+channel)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	o.files = append(o.files, file)
	return file, nil
}

func (o *Outputs) Close() error {
	closers := make([]io.Closer, len(o.files))
	for i, file := range o.files {
		closers[i] = file
	}
	o.files = nil
	return utils.CloseAll(closers...)
}
