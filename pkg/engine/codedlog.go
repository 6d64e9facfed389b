package engine

import (
	"bufio"
	"io"
	"os"

	"github.com/goerzh/kvs/pkg/kverrors"
)

// codedWriter wraps a buffered writer over a seekable file and tracks the
// byte offset of everything written through it, buffered or already
// flushed, so record locators can be computed from it.
type codedWriter struct {
	file   *os.File
	bw     *bufio.Writer
	offset int64
}

func newCodedWriter(f *os.File) (*codedWriter, error) {
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, kverrors.NewIo(err)
	}
	return &codedWriter{file: f, bw: bufio.NewWriter(f), offset: pos}, nil
}

// Write appends buf, advancing offset by the bytes actually written. It does
// not flush; callers must call Flush before treating the write as durable.
func (w *codedWriter) Write(buf []byte) (int, error) {
	n, err := w.bw.Write(buf)
	w.offset += int64(n)
	if err != nil {
		return n, kverrors.NewIo(err)
	}
	return n, nil
}

// Flush pushes buffered bytes to the OS and fsyncs the file. After it
// returns, offset equals the file's on-disk byte length.
func (w *codedWriter) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return kverrors.NewIo(err)
	}
	if err := w.file.Sync(); err != nil {
		return kverrors.NewIo(err)
	}
	return nil
}

func (w *codedWriter) Close() error {
	return w.file.Close()
}

// codedReader wraps a seekable file for record-at-offset reads.
type codedReader struct {
	file *os.File
}

func newCodedReader(f *os.File) *codedReader {
	return &codedReader{file: f}
}

// ReadAt decodes exactly one record whose encoded length is len, located at
// byte offset off.
func (r *codedReader) ReadAt(off, length int64) (Record, error) {
	if _, err := r.file.Seek(off, io.SeekStart); err != nil {
		return Record{}, kverrors.NewIo(err)
	}
	bounded := io.LimitReader(r.file, length)
	dec := newRecordDecoder(bounded)
	rec, err := dec.Decode()
	if err != nil {
		if err == io.EOF {
			return Record{}, kverrors.NewCodec(io.ErrUnexpectedEOF)
		}
		return Record{}, err
	}
	return rec, nil
}

// replayAll streams every record from offset 0, invoking fn with the
// record and the [start,end) byte span it occupied. It stops at the first
// decode error (including a partial trailing record) or clean EOF.
//
// Byte spans come from (*json.Decoder).InputOffset, which counts bytes the
// decoder has consumed regardless of how the underlying reader buffers —
// the same trick the original Rust implementation gets from
// Deserializer::byte_offset() on its serde_json stream.
func replayAll(f *os.File, fn func(rec Record, start, end int64) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return kverrors.NewIo(err)
	}
	dec := newRecordDecoder(bufio.NewReader(f))

	var start int64
	for {
		rec, err := dec.Decode()
		if err == io.EOF {
			return nil
		}
		end := dec.dec.InputOffset()
		if err != nil {
			return err
		}
		if err := fn(rec, start, end); err != nil {
			return err
		}
		start = end
	}
}
