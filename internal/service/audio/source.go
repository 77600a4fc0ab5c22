// Package audio provides the PCM sources fed to streaming recognition
// engines: WAV files paced at real time and raw PCM on stdin.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// wavHeaderSize is the header length of a canonical PCM WAV file.
const wavHeaderSize = 44

var (
	ErrNotWAV         = errors.New("audio: not a valid WAV file")
	ErrUnsupportedPCM = errors.New("audio: only PCM WAV is supported")
)

// Format describes a PCM stream.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// BytesPerSecond is the stream's data rate.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
}

// ReadWAVHeader consumes and validates a 44-byte WAV header.
func ReadWAVHeader(r io.Reader) (Format, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Format{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	f := Format{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 {
		return f, ErrUnsupportedPCM
	}
	return f, nil
}

// PacedReader throttles reads to a fixed byte rate so a file behaves like a
// live capture device.
type PacedReader struct {
	r           io.Reader
	bytesPerSec int
	sleep       func(time.Duration)
}

// NewPacedReader wraps r. A non-positive rate disables pacing.
func NewPacedReader(r io.Reader, bytesPerSec int) *PacedReader {
	return &PacedReader{r: r, bytesPerSec: bytesPerSec, sleep: time.Sleep}
}

func (p *PacedReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.bytesPerSec > 0 {
		p.sleep(time.Duration(n) * time.Second / time.Duration(p.bytesPerSec))
	}
	return n, err
}

// Source is an open audio input.
type Source struct {
	io.Reader
	Format Format
	closer io.Closer
}

// Close releases the underlying file, if any.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open resolves a source location. "-" or "stdin" reads raw PCM from stdin in
// the given format; a .wav path is header-checked and paced at real time;
// any other path is read as raw PCM in the given format, also paced.
func Open(location string, raw Format) (*Source, error) {
	switch {
	case location == "-" || location == "stdin":
		return &Source{Reader: os.Stdin, Format: raw}, nil
	case location == "":
		return nil, errors.New("audio: no source configured")
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}

	format := raw
	if strings.HasSuffix(strings.ToLower(location), ".wav") {
		format, err = ReadWAVHeader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return &Source{
		Reader: NewPacedReader(f, format.BytesPerSecond()),
		Format: format,
		closer: f,
	}, nil
}
