package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 状态码沿用阿里云NLS网关的错误码体系
const (
	StatusSuccess               = 20000000
	StatusDefaultClientError    = 40000000
	StatusAuthenticationFailed  = 40000001
	StatusInvalidMessage        = 40000002
	StatusInvalidParameter      = 40000003
	StatusIdleTimeout           = 40000004
	StatusTooManyRequests       = 40000005
	StatusUnsupportedSampleRate = 41010101
	StatusDefaultServerError    = 50000000
	StatusInternalGRPCError     = 50000001
)

var errorCodeNames = map[int]string{
	StatusSuccess:               "SUCCESS",
	StatusDefaultClientError:    "DEFAULT_CLIENT_ERROR",
	StatusAuthenticationFailed:  "AUTHENTICATION_FAILED",
	StatusInvalidMessage:        "INVALID_MESSAGE",
	StatusInvalidParameter:      "INVALID_PARAMETER",
	StatusIdleTimeout:           "IDLE_TIMEOUT",
	StatusTooManyRequests:       "TOO_MANY_REQUESTS",
	StatusUnsupportedSampleRate: "UNSUPPORTED_SAMPLE_RATE",
	StatusDefaultServerError:    "DEFAULT_SERVER_ERROR",
	StatusInternalGRPCError:     "INTERNAL_GRPC_ERROR",
}

// ErrorCodeName 根据状态码获取错误代码名称
func ErrorCodeName(status int) string {
	if name, ok := errorCodeNames[status]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// APIError 带网关状态码的业务错误
type APIError struct {
	Status  int
	Message string
	TaskID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%d:%s] %s", e.Status, ErrorCodeName(e.Status), e.Message)
}

// NewAPIError 创建业务错误
func NewAPIError(status int, message, taskID string) *APIError {
	return &APIError{Status: status, Message: message, TaskID: taskID}
}

// ErrAuthentication 鉴权失败
func ErrAuthentication(message, taskID string) *APIError {
	return NewAPIError(StatusAuthenticationFailed, message, taskID)
}

// ErrInvalidMessage 无效消息
func ErrInvalidMessage(message, taskID string) *APIError {
	return NewAPIError(StatusInvalidMessage, message, taskID)
}

// ErrInvalidParameter 无效参数
func ErrInvalidParameter(message, taskID string) *APIError {
	return NewAPIError(StatusInvalidParameter, message, taskID)
}

// ErrUnsupportedSampleRate 不支持的采样率
func ErrUnsupportedSampleRate(message, taskID string) *APIError {
	return NewAPIError(StatusUnsupportedSampleRate, message, taskID)
}

// ErrServer 服务端错误
func ErrServer(message, taskID string) *APIError {
	return NewAPIError(StatusDefaultServerError, message, taskID)
}

// ErrInference 推理调用错误
func ErrInference(message, taskID string) *APIError {
	return NewAPIError(StatusInternalGRPCError, message, taskID)
}

// Envelope 统一的HTTP JSON响应体
type Envelope struct {
	TaskID  string `json:"task_id"`
	Result  string `json:"result"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// OK 写出成功响应，result为识别结果等业务内容
func OK(c *gin.Context, taskID, result string) {
	c.Header("task_id", taskID)
	c.JSON(http.StatusOK, Envelope{
		TaskID:  taskID,
		Result:  result,
		Status:  StatusSuccess,
		Message: "SUCCESS",
	})
}

// Fail 按错误类型写出错误响应，客户端错误400，服务端错误500
func Fail(c *gin.Context, err error, taskID string) {
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = ErrServer(fmt.Sprintf("内部服务错误: %v", err), taskID)
	}
	if apiErr.TaskID == "" {
		apiErr.TaskID = taskID
	}
	httpStatus := http.StatusBadRequest
	if apiErr.Status >= StatusDefaultServerError {
		httpStatus = http.StatusInternalServerError
	}
	c.Header("task_id", apiErr.TaskID)
	c.JSON(httpStatus, Envelope{
		TaskID:  apiErr.TaskID,
		Result:  "",
		Status:  apiErr.Status,
		Message: apiErr.Message,
	})
}
