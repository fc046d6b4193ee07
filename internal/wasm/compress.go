package wasm

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an engine binary is packed on disk.
type Compression string

const (
	CompressionNone   Compression = ""
	CompressionZstd   Compression = "zstd"
	CompressionBrotli Compression = "brotli"
	CompressionLZ4    Compression = "lz4"
)

// wasmMagic is the WebAssembly binary preamble.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// CompressionForPath infers the compression from a file name such as
// "md4c.wasm.zst".
func CompressionForPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".br":
		return CompressionBrotli
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompressModule unpacks data and rejects output larger than limit bytes.
// limit <= 0 disables the check.
func decompressModule(name string, comp Compression, data []byte, limit int64) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch comp {
	case CompressionNone:
		out = data
	case CompressionZstd:
		out, err = zstdDecompress(data, limit)
	case CompressionBrotli:
		out, err = readLimited(brotli.NewReader(bytes.NewReader(data)), limit)
	case CompressionLZ4:
		out, err = readLimited(lz4.NewReader(bytes.NewReader(data)), limit)
	default:
		return nil, &DecompressionError{ModuleName: name, Compression: comp, Err: errUnknownCompression}
	}
	if err != nil {
		return nil, &DecompressionError{ModuleName: name, Compression: comp, Err: err}
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, &DecompressionError{ModuleName: name, Compression: comp, Err: errModuleTooLarge}
	}
	return out, nil
}

func zstdDecompress(in []byte, limit int64) ([]byte, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if limit > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(limit)))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(in, nil)
}

// readLimited reads at most limit+1 bytes so oversize output is detectable.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	return io.ReadAll(io.LimitReader(r, limit+1))
}

// isWasmBinary reports whether data starts with the WebAssembly magic.
func isWasmBinary(data []byte) bool {
	return bytes.HasPrefix(data, wasmMagic)
}
