package dto

import "net/http"

// BaseResponse is the envelope every API response uses. Data is omitted on
// errors.
type BaseResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func NewBaseResponse(code int, message string, data interface{}) *BaseResponse {
	return &BaseResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewSuccessResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusOK, message, data)
}

// NewAcceptedResponse answers a request whose result has to be polled for.
func NewAcceptedResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusAccepted, message, data)
}

func NewBadRequestResponse(message string) *BaseResponse {
	return NewBaseResponse(http.StatusBadRequest, message, nil)
}

func NewNotFoundResponse(message string) *BaseResponse {
	return NewBaseResponse(http.StatusNotFound, message, nil)
}

// NewErrorResponse carries a server side failure. Internal causes stay in the
// logs; message is what the caller sees.
func NewErrorResponse(code int, message string) *BaseResponse {
	if code < http.StatusInternalServerError {
		code = http.StatusInternalServerError
	}
	return NewBaseResponse(code, message, nil)
}
