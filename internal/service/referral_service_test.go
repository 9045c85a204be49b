package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReferralCode(t *testing.T) {
	const minLen, maxLen = 4, 20

	t.Run("合法推荐码", func(t *testing.T) {
		for _, code := range []string{
			"UA8K2M9P",
			"ABCD",
			"abc9",
			"12345678901234567890", // 刚好 20 位
		} {
			assert.NoError(t, ValidateReferralCode(code, minLen, maxLen), code)
		}
	})

	t.Run("长度不合法", func(t *testing.T) {
		for _, code := range []string{
			"",
			"ABC",                   // 太短
			"123456789012345678901", // 21 位
		} {
			assert.ErrorIs(t, ValidateReferralCode(code, minLen, maxLen), ErrReferralCodeFormat, code)
		}
	})

	t.Run("非法字符", func(t *testing.T) {
		for _, code := range []string{
			"AB CD",
			"AB-CD",
			"AB_CD",
			"AB!CD",
			"中文推荐码",
		} {
			assert.ErrorIs(t, ValidateReferralCode(code, minLen, maxLen), ErrReferralCodeFormat, code)
		}
	})
}
