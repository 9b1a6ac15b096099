package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

const wavFormatPCM = 1

// PCM is interleaved little-endian sample data ready for a sound device.
type PCM struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// BytesPerSecond is the data rate of the stream.
func (p *PCM) BytesPerSecond() int {
	return p.SampleRate * p.Channels * p.BitsPerSample / 8
}

func (p *PCM) Duration() time.Duration {
	bps := p.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(p.Data)) * time.Second / time.Duration(bps)
}

// Offset converts a byte count into a playback position.
func (p *PCM) Offset(n int64) time.Duration {
	bps := p.BytesPerSecond()
	if bps == 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

func ReadWAVFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(f)
}

// ReadWAV reads a 16-bit integer PCM wave file. Chunks other than fmt and
// data are skipped.
func ReadWAV(r io.Reader) (*PCM, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	pcm := &PCM{}
	haveFormat := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("no data chunk")
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, fmt.Errorf("skip pad: %w", err)
				}
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != wavFormatPCM {
				return nil, fmt.Errorf("unsupported wave format %d", format)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			pcm.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if pcm.BitsPerSample != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d", pcm.BitsPerSample)
			}
			if pcm.Channels <= 0 || pcm.SampleRate <= 0 {
				return nil, fmt.Errorf("invalid fmt chunk: %d channels at %d Hz", pcm.Channels, pcm.SampleRate)
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			// Streamed writers leave the size at its maximum; keep what arrived.
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			pcm.Data = data
			return pcm, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// WriteWAV encodes pcm as a canonical 44-byte-header wave file.
func WriteWAV(w io.Writer, pcm *PCM) error {
	blockAlign := pcm.Channels * pcm.BitsPerSample / 8
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm.Data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(pcm.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(pcm.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(pcm.BytesPerSecond()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(pcm.BitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm.Data)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm.Data)
	return err
}
