package remotecatalog

import (
	"fmt"

	"github.com/erp/catalogsync/internal/domain/catalogsync"
)

// listResponse is one page of the product list endpoint
type listResponse struct {
	Total    int                      `json:"total"`
	PageSize int                      `json:"pageSize"`
	Data     []catalogsync.RemoteItem `json:"data"`
	HasMore  *bool                    `json:"hasMore"`
	Status   *responseStatus          `json:"responseStatus,omitempty"`
}

// removedResponse is the body of the removed-products endpoint
type removedResponse struct {
	RemovedIDs []int64         `json:"removedIds"`
	Status     *responseStatus `json:"responseStatus,omitempty"`
}

// responseStatus carries the remote error envelope
type responseStatus struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (s *responseStatus) failed() bool {
	return s != nil && s.ErrorCode != ""
}

func (s *responseStatus) Error() string {
	return fmt.Sprintf("%s: %s", s.ErrorCode, s.Message)
}
