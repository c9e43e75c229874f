package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
	"collabcore/backend/internal/store"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{collab.ErrRevisionConflict, http.StatusConflict},
	{collab.ErrDuplicateOrOutOfOrder, http.StatusConflict},
	{collab.ErrHistoryTruncated, http.StatusConflict},
	{store.ErrTitleTaken, http.StatusConflict},
	{collab.ErrDocumentNotFound, http.StatusNotFound},
	{store.ErrDocumentNotFound, http.StatusNotFound},
	{ot.ErrOutOfBounds, http.StatusUnprocessableEntity},
	{ot.ErrMalformedOp, http.StatusBadRequest},
	{lww.ErrMalformedUpdate, http.StatusBadRequest},
	{lww.ErrTimestampOutOfRange, http.StatusBadRequest},
	{collab.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{store.ErrDeadlineExceeded, http.StatusGatewayTimeout},
}

// abortWithError 按错误类型返回 {"code", "message"}
func abortWithError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.AbortWithStatusJSON(e.status, gin.H{"code": e.err.Error(), "message": err.Error()})
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": err.Error()})
}

// abortBindError 请求体解析失败：已知的格式错误保留原错误码，其余统一 BAD_REQUEST
func abortBindError(c *gin.Context, err error) {
	if errors.Is(err, ot.ErrMalformedOp) || errors.Is(err, lww.ErrMalformedUpdate) {
		abortWithError(c, err)
		return
	}
	badRequest(c, err)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
}
