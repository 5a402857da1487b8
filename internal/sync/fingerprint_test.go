package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("相同输入产生相同指纹", func(t *testing.T) {
		a := Fingerprint("Subject", "Preview", "user@example.com")
		b := Fingerprint("Subject", "Preview", "user@example.com")
		assert.Equal(t, a, b)
	})

	t.Run("任一字段变化指纹随之变化", func(t *testing.T) {
		base := Fingerprint("Subject", "Preview", "user@example.com")
		assert.NotEqual(t, base, Fingerprint("Subject!", "Preview", "user@example.com"))
		assert.NotEqual(t, base, Fingerprint("Subject", "Preview!", "user@example.com"))
		assert.NotEqual(t, base, Fingerprint("Subject", "Preview", "other@example.com"))
	})

	t.Run("输出为64位十六进制", func(t *testing.T) {
		sum := Fingerprint("", "", "")
		assert.Len(t, sum, 64)
		for _, r := range sum {
			assert.Contains(t, "0123456789abcdef", string(r))
		}
	})

	t.Run("无分隔符拼接的边界歧义被接受", func(t *testing.T) {
		// (ab, c) 与 (a, bc) 拼接后等价，这属于既定行为
		assert.Equal(t,
			Fingerprint("ab", "c", "x@example.com"),
			Fingerprint("a", "bc", "x@example.com"),
		)
	})
}
