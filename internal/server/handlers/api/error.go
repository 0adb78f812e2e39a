package api

import "fmt"

type SyncAPIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *SyncAPIError) Error() string {
	return fmt.Sprintf("sync api error: code=%s, message=%s", e.Code, e.Message)
}
