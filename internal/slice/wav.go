// Package slice cuts time ranges out of PCM WAV audio.
//
// Slicing is a pure function over the source buffer: the source is never
// mutated, the same range always yields byte-identical output, and results
// come back in input-range order even though ranges are cut in parallel.
package slice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidRange      = errors.New("invalid clip range")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Range is a clip window in seconds from the start of the audio.
type Range struct {
	StartSec float64
	EndSec   float64
}

const (
	riffHeaderLen  = 12
	chunkHeaderLen = 8
	pcmFormatTag   = 1
)

type wavInfo struct {
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
	blockAlign    uint16
	dataOffset    int
	dataSize      int
}

func (w wavInfo) frames() int {
	if w.blockAlign == 0 {
		return 0
	}
	return w.dataSize / int(w.blockAlign)
}

func (w wavInfo) durationSec() float64 {
	if w.sampleRate == 0 {
		return 0
	}
	return float64(w.frames()) / float64(w.sampleRate)
}

// parseWAV walks the RIFF chunk list and locates the fmt and data chunks.
// Only uncompressed PCM is accepted.
func parseWAV(audio []byte) (wavInfo, error) {
	if len(audio) < riffHeaderLen ||
		string(audio[0:4]) != "RIFF" ||
		string(audio[8:12]) != "WAVE" {
		return wavInfo{}, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedFormat)
	}

	var info wavInfo
	var haveFmt, haveData bool

	off := riffHeaderLen
	for off+chunkHeaderLen <= len(audio) {
		id := string(audio[off : off+4])
		size := int(binary.LittleEndian.Uint32(audio[off+4 : off+8]))
		body := off + chunkHeaderLen
		if body+size > len(audio) {
			return wavInfo{}, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedFormat, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return wavInfo{}, fmt.Errorf("%w: fmt chunk too short", ErrUnsupportedFormat)
			}
			formatTag := binary.LittleEndian.Uint16(audio[body : body+2])
			if formatTag != pcmFormatTag {
				return wavInfo{}, fmt.Errorf("%w: non-PCM format tag %d", ErrUnsupportedFormat, formatTag)
			}
			info.channels = binary.LittleEndian.Uint16(audio[body+2 : body+4])
			info.sampleRate = binary.LittleEndian.Uint32(audio[body+4 : body+8])
			info.blockAlign = binary.LittleEndian.Uint16(audio[body+12 : body+14])
			info.bitsPerSample = binary.LittleEndian.Uint16(audio[body+14 : body+16])
			haveFmt = true
		case "data":
			info.dataOffset = body
			info.dataSize = size
			haveData = true
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || !haveData {
		return wavInfo{}, fmt.Errorf("%w: missing fmt or data chunk", ErrUnsupportedFormat)
	}
	if info.sampleRate == 0 || info.blockAlign == 0 {
		return wavInfo{}, fmt.Errorf("%w: zero sample rate or block align", ErrUnsupportedFormat)
	}
	return info, nil
}

// Duration returns the audio length in seconds.
func Duration(audio []byte) (float64, error) {
	info, err := parseWAV(audio)
	if err != nil {
		return 0, err
	}
	return info.durationSec(), nil
}

// Slice cuts every range out of audio and returns the clips in input order.
// Ranges are independent, so they are cut concurrently; a single bad range
// fails the whole call and no partial result is returned.
func Slice(ctx context.Context, audio []byte, ranges []Range) ([][]byte, error) {
	info, err := parseWAV(audio)
	if err != nil {
		return nil, err
	}

	duration := info.durationSec()
	for i, r := range ranges {
		if r.StartSec < 0 || r.StartSec >= r.EndSec {
			return nil, fmt.Errorf("%w: range %d [%g, %g]", ErrInvalidRange, i, r.StartSec, r.EndSec)
		}
		if r.EndSec > duration {
			return nil, fmt.Errorf("%w: range %d ends at %gs but audio is %gs", ErrInvalidRange, i, r.EndSec, duration)
		}
	}

	out := make([][]byte, len(ranges))
	g, _ := errgroup.WithContext(ctx)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			out[i] = cut(audio, info, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// cut copies one window into a fresh PCM WAV buffer with a canonical
// 44-byte header.
func cut(audio []byte, info wavInfo, r Range) []byte {
	startFrame := int(math.Round(r.StartSec * float64(info.sampleRate)))
	endFrame := int(math.Round(r.EndSec * float64(info.sampleRate)))
	if total := info.frames(); endFrame > total {
		endFrame = total
	}

	start := info.dataOffset + startFrame*int(info.blockAlign)
	end := info.dataOffset + endFrame*int(info.blockAlign)
	data := audio[start:end]

	byteRate := info.sampleRate * uint32(info.blockAlign)

	buf := make([]byte, riffHeaderLen+chunkHeaderLen+16+chunkHeaderLen+len(data))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(buf[22:24], info.channels)
	binary.LittleEndian.PutUint32(buf[24:28], info.sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], info.blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], info.bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}
