package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

// FileEntry is one directory entry in a listing response.
type FileEntry struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FilesHandler serves the directory-listing endpoint.
type FilesHandler struct {
	// defaultDir is listed when no path parameter is given, normally the
	// server's starting directory.
	defaultDir string
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(defaultDir string) *FilesHandler {
	return &FilesHandler{defaultDir: defaultDir}
}

// List handles GET /api/files?path= - a stateless directory read with no
// broker interaction.
func (h *FilesHandler) List(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		path = h.defaultDir
	}

	if !filepath.IsAbs(path) {
		sendError(c, http.StatusBadRequest, "INVALID_PATH", "Path must be absolute")
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			sendError(c, http.StatusNotFound, "PATH_NOT_FOUND", "Directory "+path+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read directory: "+err.Error())
		return
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		entryType := "file"
		if entry.IsDir() {
			entryType = "directory"
		}
		files = append(files, FileEntry{
			Name:       entry.Name(),
			Type:       entryType,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"files": files,
	})
}

// RegisterRoutes registers the files route on a Gin router group.
func (h *FilesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/files", h.List)
}
