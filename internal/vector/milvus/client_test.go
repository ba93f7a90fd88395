package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
)

func TestCourseFilterEscapes(t *testing.T) {
	assert.Equal(t, `course_id == "MATH_101"`, courseFilter("MATH_101"))
	assert.Equal(t, `course_id == "a\" || true || \"b"`, courseFilter(`a" || true || "b`))
}

func TestColumnAccessors(t *testing.T) {
	texts := entity.NewColumnVarChar("text", []string{"first", "second"})
	idx := entity.NewColumnInt64("chunk_index", []int64{4, 9})
	starts := entity.NewColumnDouble("start_time", []float64{1.5, 300})

	assert.Equal(t, "second", stringAt(texts, 1))
	assert.Equal(t, int64(9), int64At(idx, 1))
	assert.Equal(t, 300.0, floatAt(starts, 1))

	assert.Empty(t, stringAt(nil, 0))
	assert.Empty(t, stringAt(texts, 5))
}
