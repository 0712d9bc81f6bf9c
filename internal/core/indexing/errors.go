package indexing

import "errors"

var (
	// ErrArtifactNotFound はインデックスまたはメタデータが存在しない場合に返される
	ErrArtifactNotFound = errors.New("index artifact not found")

	// ErrArtifactMismatch はインデックスとメタデータの位置対応が崩れている場合に返される
	ErrArtifactMismatch = errors.New("index and metadata are not aligned")

	// ErrDimensionMismatch はベクトルの次元数がインデックスと一致しない場合に返される
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
