package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dshills/hybridindex/pkg/types"
)

// Value layout: magic(1) | created unix nanos(8) | zstd frame
const (
	valueMagic  byte = 0xE7
	headerSize       = 9
	keyPrefix        = "emb/"
	maxDecodeMB      = 16
)

// entryKey builds the Badger key for a content hash under a tier
func entryKey(tier, hash string) string {
	return keyPrefix + tier + "/" + hash
}

// codec compresses vectors with zstd. Encoder and decoder are safe for
// concurrent EncodeAll and DecodeAll calls.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderCRC(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodeMB<<20))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// encode produces the stored value for a vector
func (c *codec) encode(v *types.EmbeddingVector, created time.Time) ([]byte, error) {
	raw, err := v.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize, headerSize+len(raw)/2)
	out[0] = valueMagic
	binary.LittleEndian.PutUint64(out[1:headerSize], uint64(created.UnixNano()))
	return c.enc.EncodeAll(raw, out), nil
}

// readHeader returns the creation time stored in a value
func readHeader(value []byte) (time.Time, error) {
	if len(value) < headerSize || value[0] != valueMagic {
		return time.Time{}, fmt.Errorf("%w: bad header", types.ErrCacheCorrupt)
	}
	return time.Unix(0, int64(binary.LittleEndian.Uint64(value[1:headerSize]))), nil
}

// decode verifies and decodes a stored value. Any failure wraps
// types.ErrCacheCorrupt.
func (c *codec) decode(value []byte, tier string) (*types.EmbeddingVector, error) {
	if _, err := readHeader(value); err != nil {
		return nil, err
	}
	raw, err := c.dec.DecodeAll(value[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCacheCorrupt, err)
	}
	v := &types.EmbeddingVector{}
	if err := v.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCacheCorrupt, err)
	}
	if len(v.Values) != types.CanonicalDimension || v.Tier != tier {
		return nil, fmt.Errorf("%w: unexpected vector shape", types.ErrCacheCorrupt)
	}
	return v, nil
}
