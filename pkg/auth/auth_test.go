package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "", MaskSensitive(""))
	assert.Equal(t, "short", MaskSensitive("short"))
	assert.Equal(t, "12345678", MaskSensitive("12345678"), "8位以内不遮盖")
	assert.Equal(t, "1234*6789", MaskSensitive("123456789"))
	assert.Equal(t, "abcd********wxyz", MaskSensitive("abcdefghijklwxyz"))
}

func TestCheckTokenOptionalWhenUnconfigured(t *testing.T) {
	v := NewValidator("", "")
	assert.NoError(t, v.CheckToken(""))
	assert.NoError(t, v.CheckToken("anything"))
	assert.NoError(t, v.CheckAppKey(""))
	assert.NoError(t, v.CheckBearer(""))
}

func TestCheckToken(t *testing.T) {
	v := NewValidator("secret-token-value", "myappkey")

	assert.EqualError(t, v.CheckToken(""), "缺少X-NLS-Token头部")
	assert.NoError(t, v.CheckToken("secret-token-value"))

	err := v.CheckToken("wrong-token-value")
	assert.EqualError(t, err, "Gateway:ACCESS_DENIED:The token 'wron*********alue' is invalid!")

	// 不足10位即使相等也拒绝
	short := NewValidator("short", "")
	assert.Error(t, short.CheckToken("short"))
}

func TestCheckWSToken(t *testing.T) {
	v := NewValidator("secret-token-value", "")

	h := http.Header{}
	assert.EqualError(t, v.CheckWSToken(h), "X-NLS-Token not found in ws header")

	h.Set("X-NLS-Token", "secret-token-value")
	assert.NoError(t, v.CheckWSToken(h))

	h.Set("X-NLS-Token", "bad-token-value")
	assert.ErrorContains(t, v.CheckWSToken(h), "Gateway:ACCESS_DENIED")
}

func TestCheckBearer(t *testing.T) {
	v := NewValidator("secret-token-value", "")

	assert.EqualError(t, v.CheckBearer(""), "缺少Authorization头")
	assert.EqualError(t, v.CheckBearer("Basic abc"), "Authorization头格式错误，应为'Bearer <token>'")
	assert.NoError(t, v.CheckBearer("Bearer secret-token-value"))
	assert.ErrorContains(t, v.CheckBearer("Bearer wrong-token-value"), "is invalid!")
}

func TestCheckAppKey(t *testing.T) {
	v := NewValidator("", "myappkey")

	assert.EqualError(t, v.CheckAppKey(""), "缺少appkey参数")
	assert.NoError(t, v.CheckAppKey("myappkey"))
	assert.EqualError(t, v.CheckAppKey("otherkey"),
		"Gateway:ACCESS_DENIED:The appkey 'otherkey' is invalid!", "8位以内不遮盖")
}
