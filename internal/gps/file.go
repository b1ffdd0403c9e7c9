package gps

import (
	"bufio"
	"io"
	"log"
	"os"
	"strings"
)

// fileSource replays captured NMEA from a file, or stdin for "-".
// It never times out; io.EOF ends the stream.
type fileSource struct {
	c io.Closer
	r *bufio.Reader
}

func openFile(path string) (Source, error) {
	path = strings.TrimSpace(path)
	if path == "-" {
		log.Printf("gps replay source=stdin")
		return newReaderSource(os.Stdin, os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	log.Printf("gps replay source=file path=%s", path)
	return newReaderSource(f, f), nil
}

func newReaderSource(r io.Reader, c io.Closer) *fileSource {
	return &fileSource{c: c, r: bufio.NewReader(r)}
}

func (s *fileSource) ReadByte() (byte, error) {
	return s.r.ReadByte()
}

// Flush is a no-op: replayed input has no backlog to drop.
func (s *fileSource) Flush() error { return nil }

func (s *fileSource) Close() error {
	return s.c.Close()
}
