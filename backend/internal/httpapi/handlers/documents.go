package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
)

// Notifier 把 HTTP 写入的元数据推送给 WebSocket 房间。
// 已应用的操作由协作服务的 AppliedListener 在文档锁内推送，这里不重复
type Notifier interface {
	NotifyMeta(docID string, u lww.Update)
}

type DocumentHandler struct {
	svc      collab.Service
	notifier Notifier
}

func NewDocumentHandler(svc collab.Service, notifier Notifier) *DocumentHandler {
	return &DocumentHandler{svc: svc, notifier: notifier}
}

func (h *DocumentHandler) Register(r gin.IRouter) {
	r.POST("/documents", h.CreateDocument)
	r.GET("/documents", h.FindDocument)
	r.GET("/documents/:docID", h.GetDocument)
	r.GET("/documents/:docID/ops", h.OpsSince)
	r.POST("/documents/:docID/ops", h.SubmitOps)
	r.GET("/documents/:docID/meta", h.GetMeta)
	r.PUT("/documents/:docID/meta", h.SetMeta)
	r.GET("/documents/:docID/members", h.AliveMembers)
	r.POST("/documents/:docID/snapshot", h.SaveSnapshot)
}

type createDocumentRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	// 从gin.Context获取用户信息；gin.Context对每个用户天然隔离
	ownerID := c.GetUint64("userId")
	docID, err := h.svc.CreateDocument(c.Request.Context(), ownerID, req.Title)
	if err != nil {
		log.Printf("create document error owner=%d title=%q: %v", ownerID, req.Title, err)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"docId": docID, "ownerId": ownerID, "title": req.Title})
}

// FindDocument GET /documents?title=
func (h *DocumentHandler) FindDocument(c *gin.Context) {
	title := c.Query("title")
	if title == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "title is required"})
		return
	}
	docID, err := h.svc.GetDocumentID(c.Request.Context(), title)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "title": title})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID := c.Param("docID")
	content, rev, err := h.svc.LoadDocumentContent(c.Request.Context(), docID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revision": rev, "content": content})
}

func (h *DocumentHandler) OpsSince(c *gin.Context) {
	docID := c.Param("docID")
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ops, err := h.svc.OpsSince(c.Request.Context(), docID, from, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ops == nil {
		ops = []collab.AppliedOp{}
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "applied": ops})
}

type submitRequest struct {
	BaseRevision uint64  `json:"baseRevision"`
	ClientID     string  `json:"clientId" binding:"required"`
	ClientSeq    uint64  `json:"clientSeq"`
	Ops          []ot.Op `json:"ops"`
}

func (h *DocumentHandler) SubmitOps(c *gin.Context) {
	docID := c.Param("docID")
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBindError(c, err)
		return
	}
	applied, err := h.svc.Submit(c.Request.Context(), docID, c.GetUint64("userId"),
		req.BaseRevision, req.ClientID, req.ClientSeq, req.Ops)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func (h *DocumentHandler) GetMeta(c *gin.Context) {
	docID := c.Param("docID")
	entries, err := h.svc.MetaEntries(c.Request.Context(), docID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "meta": entries})
}

// SetMeta 过期写入返回 200 + applied=false
func (h *DocumentHandler) SetMeta(c *gin.Context) {
	docID := c.Param("docID")
	var u lww.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		abortBindError(c, err)
		return
	}
	applied, err := h.svc.SetMeta(c.Request.Context(), docID, u)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if applied && h.notifier != nil {
		h.notifier.NotifyMeta(docID, u)
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "applied": applied, "update": u})
}

func (h *DocumentHandler) AliveMembers(c *gin.Context) {
	docID := c.Param("docID")
	members, err := h.svc.AliveMembers(c.Request.Context(), docID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if members == nil {
		members = []collab.Member{}
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "members": members})
}

func (h *DocumentHandler) SaveSnapshot(c *gin.Context) {
	docID := c.Param("docID")
	if err := h.svc.SaveSnapshot(c.Request.Context(), docID); err != nil {
		log.Printf("save snapshot error doc=%s: %v", docID, err)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "saved": true})
}
