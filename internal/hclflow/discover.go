package hclflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/flowgridgo/internal/ctxlog"
)

// resolveFlowPath expands a path into the flow files it names: the file
// itself, or every .hcl file under a directory tree.
func resolveFlowPath(ctx context.Context, path string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("flow path not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("access flow path %s: %w", path, err)
	}

	if info.IsDir() {
		logger.Debug("Flow path is a directory, scanning for HCL files.", "directory", path)
		return findFlowFiles(path)
	}

	logger.Debug("Flow path is a single file.", "file", path)
	if filepath.Ext(path) != ".hcl" {
		return nil, fmt.Errorf("flow file %s is not an .hcl file", path)
	}
	return []string{path}, nil
}

// findFlowFiles scans a directory recursively for .hcl files, in lexical
// order.
func findFlowFiles(rootDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".hcl" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
