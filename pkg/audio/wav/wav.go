// Package wav reads and writes 16-bit PCM WAV data: backchannel clips are
// loaded from WAV files at startup, and audio chunks are encoded to WAV in
// memory for speech-to-text upload.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Header describes the format of decoded WAV data.
type Header struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

// DecodeFile reads a WAV file and returns its PCM payload and format.
// Only 16-bit PCM is supported.
func DecodeFile(path string) ([]byte, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a WAV stream and returns its PCM payload and format.
func Decode(r io.Reader) ([]byte, Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Header{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, Header{}, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var hdr Header
	var pcm []byte
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, Header{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, Header{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, Header{}, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			hdr.NumChannels = int(binary.LittleEndian.Uint16(body[2:4]))
			hdr.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			hdr.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			pcm = make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, Header{}, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, Header{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if hdr.SampleRate != 0 && pcm != nil {
			break
		}
	}

	if hdr.SampleRate == 0 {
		return nil, Header{}, fmt.Errorf("missing fmt chunk")
	}
	if hdr.BitsPerSample != 16 {
		return nil, Header{}, fmt.Errorf("unsupported bit depth %d (want 16)", hdr.BitsPerSample)
	}
	if pcm == nil {
		return nil, Header{}, fmt.Errorf("missing data chunk")
	}
	return pcm, hdr, nil
}

// Frames slices PCM audio into fixed-duration frames. A trailing partial
// frame is zero-padded.
func Frames(pcm []byte, hdr Header, frameDuration time.Duration) []*rtc.AudioFrame {
	samplesPerFrame := int(frameDuration * time.Duration(hdr.SampleRate) / time.Second)
	bytesPerFrame := samplesPerFrame * hdr.NumChannels * 2

	var frames []*rtc.AudioFrame
	for off := 0; off < len(pcm); off += bytesPerFrame {
		data := make([]byte, bytesPerFrame)
		copy(data, pcm[off:min(off+bytesPerFrame, len(pcm))])
		frames = append(frames, &rtc.AudioFrame{
			Data:              data,
			SampleRate:        hdr.SampleRate,
			SamplesPerChannel: samplesPerFrame,
			NumChannels:       hdr.NumChannels,
			Seq:               uint64(len(frames)),
		})
	}
	return frames
}

// Encode wraps 16-bit PCM in a WAV container in memory.
func Encode(pcm []byte, sampleRate, numChannels int) []byte {
	var buf bytes.Buffer
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, dataSize+36)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels*2)) // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)
	return buf.Bytes()
}

// WriteToneFile writes a mono 16-bit WAV containing a faded sine tone.
// Used by the gen-backchannels command to produce placeholder clips.
func WriteToneFile(path string, sampleRate int, freq float64, d time.Duration) error {
	samples := int(d * time.Duration(sampleRate) / time.Second)
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRate)
		fade := 1.0
		if edge := samples / 10; i < edge {
			fade = float64(i) / float64(edge)
		} else if i > samples-edge {
			fade = float64(samples-i) / float64(edge)
		}
		s := int16(32767 * 0.5 * fade * math.Sin(2*math.Pi*freq*t))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	return os.WriteFile(path, Encode(pcm, sampleRate, 1), 0o644)
}
