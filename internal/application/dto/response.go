package dto

import (
	"fmt"
	"time"

	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO 错误信息 DTO
type ErrorDTO struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Description string            `json:"description,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	ErrorURI    string            `json:"error_uri,omitempty"`
}

// ErrorResponse 创建错误响应
func ErrorResponse(err error, traceID string) *APIResponse {
	var errorDTO *ErrorDTO

	if kvErr, ok := errors.AsKVError(err); ok {
		errorDTO = &ErrorDTO{
			Code:        string(kvErr.Code()),
			Message:     kvErr.Error(),
			Description: kvErr.Description(),
			Details:     details(kvErr.Metadata()),
			ErrorURI:    generateErrorURI(string(kvErr.Code())),
		}
	} else {
		errorDTO = &ErrorDTO{
			Code:        string(constants.ErrCodeInternal),
			Message:     "Internal server error",
			Description: "The service encountered an unexpected condition.",
			ErrorURI:    generateErrorURI(string(constants.ErrCodeInternal)),
		}
	}

	return &APIResponse{
		Success:   false,
		Error:     errorDTO,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

func details(meta map[string]interface{}) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// generateErrorURI 生成错误文档 URI
func generateErrorURI(code string) string {
	return "https://docs.keyvault.dev/errors#" + code
}

//Personal.AI order the ending
