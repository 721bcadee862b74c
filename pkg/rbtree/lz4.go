package rbtree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Column is the set of fixed-width element types a hibernated arena column can hold.
type Column interface {
	~uint8 | ~uint32 | ~int64
}

// CompressSlice compresses a slice of fixed-width integers with LZ4.
func CompressSlice[T Column](data []T) ([]byte, error) {
	buf := new(bytes.Buffer)

	err := binary.Write(buf, binary.LittleEndian, data)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(buf.Len()))

	written, err := lz4.CompressBlock(buf.Bytes(), compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("compress column: %w", err)
	}

	return compressed[:written], nil
}

// DecompressSlice decompresses a slice previously compressed with CompressSlice.
// `result` must be preallocated with the original length.
func DecompressSlice[T Column](data []byte, result []T) error {
	expected := binary.Size(result)
	decompressed := make([]byte, expected)

	read, err := lz4.UncompressBlock(data, decompressed)
	if err != nil {
		return fmt.Errorf("uncompress column: %w", err)
	}

	if read != expected {
		return fmt.Errorf("%w: %d bytes instead of %d", ErrCorruptColumn, read, expected)
	}

	err = binary.Read(bytes.NewReader(decompressed), binary.LittleEndian, result)
	if err != nil {
		return fmt.Errorf("decode column: %w", err)
	}

	return nil
}
