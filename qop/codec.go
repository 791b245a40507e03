// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"bytes"
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype every QOP message is encoded with.
const CodecName = "cbor"

// CompressorName is the gRPC compressor enabled by ConnectionDetails.Compression.
const CompressorName = "zstd"

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic("qop: CBOR encoder initialization failed: " + err.Error())
	}
	// Opaque payloads such as machine configs decode to map[string]any.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("qop: CBOR decoder initialization failed: " + err.Error())
	}
	encoding.RegisterCodec(cborCodec{})
	encoding.RegisterCompressor(&zstdCompressor{})
}

// cborCodec implements encoding.Codec for the request and response structs
// in messages.go. Field keys are integers that follow the server's field
// numbering.
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) { return cborEnc.Marshal(v) }

func (cborCodec) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }

func (cborCodec) Name() string { return CodecName }

// zstdCompressor implements encoding.Compressor with one shared encoder and
// decoder working on whole messages.
type zstdCompressor struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (c *zstdCompressor) init() {
	c.once.Do(func() {
		c.enc, c.err = zstd.NewWriter(nil)
		if c.err != nil {
			return
		}
		c.dec, c.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	return &zstdWriter{w: w, enc: c.enc}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out), nil
}

func (c *zstdCompressor) Name() string { return CompressorName }

// zstdWriter buffers one message and compresses it on Close.
type zstdWriter struct {
	w   io.Writer
	enc *zstd.Encoder
	buf bytes.Buffer
}

func (z *zstdWriter) Write(p []byte) (int, error) { return z.buf.Write(p) }

func (z *zstdWriter) Close() error {
	out := z.enc.EncodeAll(z.buf.Bytes(), make([]byte, 0, z.buf.Len()))
	_, err := z.w.Write(out)
	return err
}
