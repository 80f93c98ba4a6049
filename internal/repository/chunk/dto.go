package chunk

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/finsight-ai/finsight/internal/domain"
)

// Hash field names for chunk records. The vector field is raw little-endian
// float32 bytes, the layout RediSearch expects for HNSW indexing.
const (
	fieldID        = "id"
	fieldSourceKey = "source_key"
	fieldTicker    = "ticker"
	fieldClass     = "class"
	fieldText      = "text"
	fieldOrdinal   = "ordinal"
	fieldVector    = "vector"
)

func chunkToFields(c *domain.Chunk, ordinal int) map[string]string {
	return map[string]string{
		fieldID:        c.ID,
		fieldSourceKey: c.SourceKey,
		fieldTicker:    c.Ticker,
		fieldClass:     string(c.Class),
		fieldText:      c.Text,
		fieldOrdinal:   strconv.Itoa(ordinal),
		fieldVector:    string(vectorToBytes(c.Vector)),
	}
}

// chunkFromFields rebuilds a chunk record without its vector. Rebuild
// consumers (the lexical index) only need the text side.
func chunkFromFields(m map[string]string) domain.Chunk {
	return domain.Chunk{
		ID:        m[fieldID],
		SourceKey: m[fieldSourceKey],
		Ticker:    m[fieldTicker],
		Class:     domain.ChunkClass(m[fieldClass]),
		Text:      m[fieldText],
	}
}

func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
