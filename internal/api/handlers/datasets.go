package handlers

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"trading-backtest/internal/api/models"
)

// DatasetHandler lists the bar files csv data sources may name.
type DatasetHandler struct {
	dataDir string
}

func NewDatasetHandler(dataDir string) *DatasetHandler {
	return &DatasetHandler{dataDir: dataDir}
}

// ListDatasets handles GET /api/v1/datasets
func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	datasets, err := h.scan()
	if err != nil {
		abort(c, http.StatusInternalServerError, "DATASETS_LOAD_ERROR",
			fmt.Sprintf("Failed to list datasets: %v", err), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

func (h *DatasetHandler) scan() ([]models.DatasetInfo, error) {
	datasets := []models.DatasetInfo{}
	err := filepath.WalkDir(h.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A missing data directory is an empty catalog, not an error.
			if os.IsNotExist(err) && path == h.dataDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".json":
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(h.dataDir, path)
		if err != nil {
			return err
		}
		datasets = append(datasets, models.DatasetInfo{
			Path:       filepath.ToSlash(rel),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Path < datasets[j].Path })
	return datasets, nil
}
