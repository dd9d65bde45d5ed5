package disk

import (
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"xengine/util"
)

// CompressionMethod 页面压缩方法
type CompressionMethod uint8

const (
	COMPRESSION_NONE   CompressionMethod = iota // 不压缩
	COMPRESSION_SNAPPY                          // snappy压缩
	COMPRESSION_LZ4                             // lz4块压缩
)

// ParseCompressionMethod 解析配置中的压缩方法名
func ParseCompressionMethod(name string) (CompressionMethod, error) {
	switch name {
	case "", "none":
		return COMPRESSION_NONE, nil
	case "snappy":
		return COMPRESSION_SNAPPY, nil
	case "lz4":
		return COMPRESSION_LZ4, nil
	}
	return COMPRESSION_NONE, errors.Errorf("unknown compression method %q", name)
}

// 压缩页帧头: magic(4) + method(1) + rawLen(4) + compLen(4)
// 页面镜像首字节是page_type字段的低位（0/1/2），与魔数首字节不会冲突
var compressedPageMagic = []byte{0xC9, 0x50, 0x47, 0x5A}

const compressedFrameHeaderSize = 13

// compressPageImage 压缩页面镜像。压缩无收益时返回原始镜像
func compressPageImage(method CompressionMethod, image []byte) []byte {
	if method == COMPRESSION_NONE {
		return image
	}

	var compressed []byte
	switch method {
	case COMPRESSION_SNAPPY:
		compressed = snappy.Encode(nil, image)
	case COMPRESSION_LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(image)))
		n, err := lz4.CompressBlock(image, dst, nil)
		if err != nil || n == 0 {
			return image
		}
		compressed = dst[:n]
	default:
		return image
	}

	if compressedFrameHeaderSize+len(compressed) >= len(image) {
		return image
	}

	frame := make([]byte, len(image))
	copy(frame, compressedPageMagic)
	frame[4] = byte(method)
	util.WriteUB4(frame, 5, uint32(len(image)))
	util.WriteUB4(frame, 9, uint32(len(compressed)))
	copy(frame[compressedFrameHeaderSize:], compressed)
	return frame
}

// decompressPageImage 还原磁盘块为页面镜像
func decompressPageImage(block []byte, out []byte) error {
	if len(block) < compressedFrameHeaderSize ||
		block[0] != compressedPageMagic[0] || block[1] != compressedPageMagic[1] ||
		block[2] != compressedPageMagic[2] || block[3] != compressedPageMagic[3] {
		copy(out, block)
		return nil
	}

	method := CompressionMethod(block[4])
	rawLen := int(util.ReadUB4(block, 5))
	compLen := int(util.ReadUB4(block, 9))
	if rawLen != len(out) || compLen <= 0 || compressedFrameHeaderSize+compLen > len(block) {
		return errors.Wrapf(ErrCorruptFrame, "rawLen=%d compLen=%d", rawLen, compLen)
	}
	payload := block[compressedFrameHeaderSize : compressedFrameHeaderSize+compLen]

	switch method {
	case COMPRESSION_SNAPPY:
		decoded, err := snappy.Decode(out[:0], payload)
		if err != nil {
			return errors.Wrap(err, "snappy decode failed")
		}
		if len(decoded) != rawLen {
			return errors.Wrapf(ErrCorruptFrame, "snappy decoded %d bytes, want %d", len(decoded), rawLen)
		}
		copy(out, decoded)
		return nil
	case COMPRESSION_LZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return errors.Wrap(err, "lz4 decode failed")
		}
		if n != rawLen {
			return errors.Wrapf(ErrCorruptFrame, "lz4 decoded %d bytes, want %d", n, rawLen)
		}
		return nil
	}
	return errors.Wrapf(ErrCorruptFrame, "unknown method %d", method)
}
