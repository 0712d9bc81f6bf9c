package filestore

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/indexing"
)

const formatVersion uint32 = 1

var magic = [8]byte{'D', 'O', 'C', 'R', 'A', 'G', 'I', 'X'}

// ErrInvalidFormat はインデックスファイルの形式が不正な場合に返される
var ErrInvalidFormat = errors.New("invalid index file format")

// indexHeader はインデックスファイルの固定長ヘッダ
// MetadataSHA256 は同時に保存したメタデータファイルのハッシュ
type indexHeader struct {
	Magic          [8]byte
	Version        uint32
	Dimension      uint32
	Count          uint64
	MetadataSHA256 [sha256.Size]byte
	BuildID        [16]byte
}

// encodeIndex はヘッダとリトルエンディアンの float32 列を書き出す
func encodeIndex(w io.Writer, index *indexing.FlatIndex, metadataSum [sha256.Size]byte, buildID uuid.UUID) error {
	bw := bufio.NewWriter(w)

	header := indexHeader{
		Magic:          magic,
		Version:        formatVersion,
		Dimension:      uint32(index.Dimension()),
		Count:          uint64(index.Len()),
		MetadataSHA256: metadataSum,
		BuildID:        buildID,
	}
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if index.Len() > 0 {
		if err := binary.Write(bw, binary.LittleEndian, index.Data()); err != nil {
			return fmt.Errorf("failed to write index vectors: %w", err)
		}
	}

	return bw.Flush()
}

// headerSize はエンコード済みヘッダのバイト数
var headerSize = int64(binary.Size(indexHeader{}))

// decodeIndex はインデックスファイルを読み込む
// size はファイル全体のバイト数で、ヘッダの件数と次元がこれと一致しない場合は確保前に拒否する
func decodeIndex(r io.Reader, size int64) (*indexHeader, *indexing.FlatIndex, error) {
	br := bufio.NewReader(r)

	var header indexHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidFormat, err)
	}
	if header.Magic != magic {
		return nil, nil, fmt.Errorf("%w: unexpected magic %q", ErrInvalidFormat, header.Magic[:])
	}
	if header.Version != formatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, header.Version)
	}
	if header.Dimension == 0 {
		return nil, nil, fmt.Errorf("%w: zero dimension", ErrInvalidFormat)
	}

	// ペイロード長から件数を逆算して照合する（乗算はオーバーフローし得る）
	payload := size - headerSize
	if payload < 0 {
		return nil, nil, fmt.Errorf("%w: file smaller than header", ErrInvalidFormat)
	}
	vectorBytes := 4 * uint64(header.Dimension)
	if uint64(payload)%vectorBytes != 0 || header.Count != uint64(payload)/vectorBytes {
		return nil, nil, fmt.Errorf("%w: header declares %d vectors of dimension %d but payload is %d bytes",
			ErrInvalidFormat, header.Count, header.Dimension, payload)
	}

	data := make([]float32, uint64(payload)/4)
	if len(data) > 0 {
		if err := binary.Read(br, binary.LittleEndian, data); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to read vectors: %v", ErrInvalidFormat, err)
		}
	}

	// 末尾に余分なデータがないこと
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, nil, fmt.Errorf("%w: trailing data after vectors", ErrInvalidFormat)
	}

	index, err := indexing.NewFlatIndexFromData(int(header.Dimension), data)
	if err != nil {
		return nil, nil, err
	}

	return &header, index, nil
}
