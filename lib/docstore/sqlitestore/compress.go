// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a document body is stored. The values
// are persisted in the compression column and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", c)
}

// ParseCompression parses none, lz4 or zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("sqlitestore: unknown compression %q", name)
}

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("sqlitestore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("sqlitestore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the stored form of body and the tag describing it.
// Bodies that do not shrink are stored raw.
func compress(body []byte, preferred Compression) ([]byte, Compression, error) {
	var stored []byte
	var err error
	switch preferred {
	case CompressionNone:
		return body, CompressionNone, nil
	case CompressionLZ4:
		stored, err = compressLZ4(body)
	case CompressionZstd:
		stored, err = compressZstd(body)
	default:
		return nil, 0, fmt.Errorf("sqlitestore: unsupported compression %s", preferred)
	}
	if errors.Is(err, errIncompressible) {
		return body, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return stored, preferred, nil
}

func decompress(stored []byte, tag Compression, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != size {
			return nil, fmt.Errorf("sqlitestore: body is %d bytes, expected %d", len(stored), size)
		}
		return stored, nil
	case CompressionLZ4:
		body := make([]byte, size)
		read, err := lz4.UncompressBlock(stored, body)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("sqlitestore: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return body, nil
	case CompressionZstd:
		body, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: zstd decompress: %w", err)
		}
		if len(body) != size {
			return nil, fmt.Errorf("sqlitestore: zstd decompress: got %d bytes, expected %d", len(body), size)
		}
		return body, nil
	}
	return nil, fmt.Errorf("sqlitestore: unsupported compression %s", tag)
}

func compressLZ4(body []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(body)))
	written, err := lz4.CompressBlock(body, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: lz4 compress: %w", err)
	}
	if written == 0 || written >= len(body) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(body []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(body, nil)
	if len(compressed) >= len(body) {
		return nil, errIncompressible
	}
	return compressed, nil
}
