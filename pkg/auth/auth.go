package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// 鉴权逻辑：未配置APPTOKEN/APPKEY时鉴权可选，配置后强校验

// MaskSensitive 遮盖敏感数据，保留前4后4字符
func MaskSensitive(data string) string {
	const keepPrefix, keepSuffix = 4, 4
	if data == "" || len(data) <= keepPrefix+keepSuffix {
		return data
	}
	return data[:keepPrefix] +
		strings.Repeat("*", len(data)-keepPrefix-keepSuffix) +
		data[len(data)-keepSuffix:]
}

// Validator 校验请求携带的token和appkey
type Validator struct {
	AppToken string
	AppKey   string
}

// NewValidator 基于配置的凭据创建校验器
func NewValidator(appToken, appKey string) *Validator {
	return &Validator{AppToken: appToken, AppKey: appKey}
}

// validToken token需至少10位且与配置一致
func (v *Validator) validToken(token string) bool {
	if v.AppToken == "" {
		return true
	}
	return len(token) >= 10 && token == v.AppToken
}

// validAppKey appkey需至少3位且与配置一致
func (v *Validator) validAppKey(appkey string) bool {
	if v.AppKey == "" {
		return true
	}
	return len(appkey) >= 3 && appkey == v.AppKey
}

// CheckToken 校验X-NLS-Token等头部携带的token
func (v *Validator) CheckToken(token string) error {
	if v.AppToken == "" {
		return nil
	}
	if token == "" {
		return fmt.Errorf("缺少X-NLS-Token头部")
	}
	if !v.validToken(token) {
		return fmt.Errorf("Gateway:ACCESS_DENIED:The token '%s' is invalid!", MaskSensitive(token))
	}
	return nil
}

// CheckWSToken 校验WebSocket握手头部的token
func (v *Validator) CheckWSToken(header http.Header) error {
	if v.AppToken == "" {
		return nil
	}
	token := header.Get("X-NLS-Token")
	if token == "" {
		return fmt.Errorf("X-NLS-Token not found in ws header")
	}
	if !v.validToken(token) {
		return fmt.Errorf("Gateway:ACCESS_DENIED:The token '%s' is invalid!", MaskSensitive(token))
	}
	return nil
}

// CheckBearer 校验OpenAI兼容接口的Authorization头部
func (v *Validator) CheckBearer(authHeader string) error {
	if v.AppToken == "" {
		return nil
	}
	if authHeader == "" {
		return fmt.Errorf("缺少Authorization头")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("Authorization头格式错误，应为'Bearer <token>'")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if !v.validToken(token) {
		return fmt.Errorf("Gateway:ACCESS_DENIED:The token '%s' is invalid!", MaskSensitive(token))
	}
	return nil
}

// CheckAppKey 校验请求中的appkey参数
func (v *Validator) CheckAppKey(appkey string) error {
	if v.AppKey == "" {
		return nil
	}
	if appkey == "" {
		return fmt.Errorf("缺少appkey参数")
	}
	if !v.validAppKey(appkey) {
		return fmt.Errorf("Gateway:ACCESS_DENIED:The appkey '%s' is invalid!", MaskSensitive(appkey))
	}
	return nil
}
