package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SyncFM/logger"
	"SyncFM/storage"

	"github.com/gorilla/mux"
)

// ItemsHandler 列出当前用户可访问的媒体条目
func (h *APIHandler) ItemsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil || user == nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	folders, err := h.itemRepo.ListFolders(r.Context())
	if err != nil {
		logger.Error("查询媒体目录失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	accessible := make([]interface{}, 0)
	for _, folder := range folders {
		items, err := h.itemRepo.ListByFolder(r.Context(), folder.ID)
		if err != nil {
			logger.Error("查询目录条目失败",
				logger.ErrorField(err),
				logger.Int64("folderId", folder.ID))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		for _, item := range items {
			if item.AccessibleBy(user) {
				accessible = append(accessible, item)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accessible)
}

// MediaStreamHandler 经 MinIO 回源媒体内容。访问控制按条目的
// 分级与目录规则判定。
func (h *APIHandler) MediaStreamHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	itemID, err := strconv.ParseInt(vars["item_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid item ID format", http.StatusBadRequest)
		return
	}

	item, err := h.itemRepo.GetByID(r.Context(), itemID)
	if err != nil {
		logger.Error("查询媒体条目失败",
			logger.ErrorField(err),
			logger.Int64("itemId", itemID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil || user == nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !item.AccessibleBy(user) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := storage.MediaObject(ctx, item.ObjectPath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	var contentType string
	switch {
	case strings.HasSuffix(item.ObjectPath, ".m3u8"):
		contentType = "application/vnd.apple.mpegurl"
	case strings.HasSuffix(item.ObjectPath, ".ts"):
		contentType = "video/MP2T"
	case strings.HasSuffix(item.ObjectPath, ".mp4"):
		contentType = "video/mp4"
	case strings.HasSuffix(item.ObjectPath, ".mp3"):
		contentType = "audio/mpeg"
	default:
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("媒体回源中断",
			logger.ErrorField(err),
			logger.Int64("itemId", itemID))
	}
}
