package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressGenerator_LocalPart(t *testing.T) {
	g := NewAddressGenerator()

	t.Run("随机前缀符合格式要求", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			part := g.RandomLocalPart()
			assert.Len(t, part, 12)
			assert.Regexp(t, localPartPattern, part)
		}
	})

	t.Run("单词前缀符合格式要求", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			assert.Regexp(t, localPartPattern, g.WordLocalPart())
		}
	})

	t.Run("时间戳前缀符合格式要求", func(t *testing.T) {
		assert.Regexp(t, localPartPattern, g.TimestampedLocalPart())
	})

	t.Run("按方式分派", func(t *testing.T) {
		assert.Regexp(t, localPartPattern, g.LocalPart("word"))
		assert.Regexp(t, localPartPattern, g.LocalPart("timestamped"))
		assert.Regexp(t, localPartPattern, g.LocalPart(""))
		assert.Regexp(t, localPartPattern, g.LocalPart("unknown"))
	})
}
