package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	wavFormatPCM  = 1
	bitsPerSample = 16
	headerSize    = 44
)

// WriteWAV записывает Audio как RIFF/WAVE 16-bit PCM.
func WriteWAV(w io.Writer, a Audio) error {
	if err := a.Validate(); err != nil {
		return err
	}

	dataLen := uint32(len(a.Samples) * 2)
	blockAlign := uint16(a.Channels * bitsPerSample / 8)

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(a.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(a.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(a.SampleRate)*uint32(blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, a.Samples); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WriteWAVFile создаёт файл path и записывает в него Audio.
// При ошибке частично записанный файл удаляется.
func WriteWAVFile(path string, a Audio) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close wav: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := WriteWAV(bw, a); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush wav: %w", err)
	}
	return nil
}

// EncodeWAV возвращает Audio в виде байтов WAV.
func EncodeWAV(a Audio) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(a.Samples)*2)
	if err := WriteWAV(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV разбирает WAV из памяти.
func DecodeWAV(b []byte) (Audio, error) {
	return ReadWAV(bytes.NewReader(b))
}

// ReadWAVFile читает WAV с диска.
func ReadWAVFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	return ReadWAV(bufio.NewReader(f))
}

// ReadWAV разбирает RIFF/WAVE 16-bit PCM.
//
// Неизвестные chunk'и пропускаются. Если размер data больше, чем
// реально есть в потоке (стриминговые писатели ставят 0xFFFFFFFF),
// читается всё до EOF.
func ReadWAV(r io.Reader) (Audio, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Audio{}, ErrNotWAV
	}

	var (
		a       Audio
		haveFmt bool
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return Audio{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
			}
			return Audio{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Audio{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrNotWAV, size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Audio{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != wavFormatPCM || bits != bitsPerSample {
				return Audio{}, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedWAV, format, bits)
			}
			a.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			a.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return Audio{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			data, err := io.ReadAll(io.LimitReader(r, int64(size)))
			if err != nil {
				return Audio{}, fmt.Errorf("read data chunk: %w", err)
			}
			a.Samples = make([]int16, len(data)/2)
			for i := range a.Samples {
				a.Samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
			}
			if err := a.Validate(); err != nil {
				return Audio{}, err
			}
			return a, nil

		default:
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Audio{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}
