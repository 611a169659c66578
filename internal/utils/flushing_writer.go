package utils

import "io"

type flusher interface {
	Flush() error
}

type flushingWriter struct {
	writer io.Writer
}

// NewFlushingWriter wraps writer so that every Write is followed by Flush when the writer supports it.
func NewFlushingWriter(writer io.Writer) io.Writer {
	return flushingWriter{writer: writer}
}

// Write implements io.Writer.
func (writer flushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flushable, supportsFlush := writer.writer.(flusher); supportsFlush {
		if flushError := flushable.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}
	return bytesWritten, nil
}
