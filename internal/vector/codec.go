package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// vectors.bin layout, little endian:
//
//	magic "PDIV" | version uint32 | dimensions uint32 | count uint32 | count*dimensions float32
var vectorsMagic = [4]byte{'P', 'D', 'I', 'V'}

const (
	vectorsVersion    uint32 = 1
	vectorsHeaderSize int64  = 16
	// maxDimensions bounds the per-vector allocation for a damaged header.
	maxDimensions = 1 << 16
)

func writeVectors(path string, dimensions int, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	w := bufio.NewWriter(f)
	header := []uint32{vectorsVersion, uint32(dimensions), uint32(len(vectors))}
	if _, err := w.Write(vectorsMagic[:]); err != nil {
		f.Close()
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for i, v := range vectors {
		if _, err := w.Write(float32SliceToBytes(v)); err != nil {
			f.Close()
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush vectors: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync vectors: %w", err)
	}
	return f.Close()
}

// readVectors reads a vectors file that must hold exactly count vectors of
// the given dimensions. The header is checked against those values and the
// file size before any vector memory is allocated.
func readVectors(path string, dimensions, count int) ([][]float32, error) {
	if dimensions <= 0 || dimensions > maxDimensions || count < 0 {
		return nil, fmt.Errorf("invalid vectors shape %dx%d", count, dimensions)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat vectors file: %w", err)
	}
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != vectorsMagic {
		return nil, errors.New("not a vectors file")
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != vectorsVersion {
		return nil, fmt.Errorf("unsupported vectors version %d", header[0])
	}
	if int64(header[1]) != int64(dimensions) || int64(header[2]) != int64(count) {
		return nil, fmt.Errorf("vectors header is %dx%d, expected %dx%d",
			header[2], header[1], count, dimensions)
	}
	if want := vectorsHeaderSize + int64(count)*int64(dimensions)*4; info.Size() != want {
		return nil, fmt.Errorf("vectors file is %d bytes, expected %d", info.Size(), want)
	}

	vectors := make([][]float32, 0, count)
	buf := make([]byte, dimensions*4)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
