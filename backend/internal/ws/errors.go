package ws

import (
	"errors"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
	"collabcore/backend/internal/store"
)

var (
	ErrMalformedMessage = errors.New("MALFORMED_MESSAGE")
	ErrNotInDocument    = errors.New("NOT_IN_DOCUMENT")
)

var knownErrors = []error{
	ErrMalformedMessage,
	ErrNotInDocument,
	collab.ErrRevisionConflict,
	collab.ErrDuplicateOrOutOfOrder,
	collab.ErrHistoryTruncated,
	collab.ErrDocumentNotFound,
	collab.ErrStoreUnavailable,
	collab.ErrAcquireTimeout,
	ot.ErrOutOfBounds,
	ot.ErrMalformedOp,
	lww.ErrMalformedUpdate,
	lww.ErrTimestampOutOfRange,
	store.ErrDocumentNotFound,
	store.ErrTitleTaken,
	store.ErrDeadlineExceeded,
}

// errorCode 把错误映射成客户端可以判断的错误码
func errorCode(err error) string {
	for _, target := range knownErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "INTERNAL"
}
