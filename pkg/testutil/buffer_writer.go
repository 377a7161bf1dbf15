/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// Chunk describes a single Write call made to a BufferWriter.
type Chunk struct {
	Offset    int
	Length    int
	Timestamp time.Time
}

// BufferWriter is an io.WriteCloser that keeps everything written to it, up to maxSize bytes.
// Every write operation is tracked and timestamped (see Chunks()), and calls to Flush() are counted,
// so tests can verify how a component writes its output, not just what it writes.
// All methods are goroutine-safe.
type BufferWriter struct {
	data    []byte
	chunks  []Chunk
	flushes int
	lock    *sync.Mutex
	maxSize int
	closed  bool
}

func NewBufferWriter(maxSize int) *BufferWriter {
	return &BufferWriter{
		lock:    &sync.Mutex{},
		maxSize: maxSize,
	}
}

func (bw *BufferWriter) Write(p []byte) (n int, err error) {
	bw.lock.Lock()
	defer bw.lock.Unlock()

	if bw.closed || len(bw.data)+len(p) > bw.maxSize {
		return 0, io.ErrShortWrite
	}

	bw.chunks = append(bw.chunks, Chunk{
		Offset:    len(bw.data),
		Length:    len(p),
		Timestamp: time.Now(),
	})
	bw.data = append(bw.data, p...)
	return len(p), nil
}

func (bw *BufferWriter) Flush() error {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	bw.flushes++
	return nil
}

func (bw *BufferWriter) Bytes() []byte {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bytes.Clone(bw.data)
}

func (bw *BufferWriter) String() string {
	return string(bw.Bytes())
}

func (bw *BufferWriter) Close() error {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	bw.closed = true
	return nil
}

func (bw *BufferWriter) Chunks() []Chunk {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	if bw.chunks == nil {
		return nil
	}
	return append([]Chunk{}, bw.chunks...) // make a copy
}

func (bw *BufferWriter) Flushes() int {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bw.flushes
}

var _ io.WriteCloser = (*BufferWriter)(nil)
