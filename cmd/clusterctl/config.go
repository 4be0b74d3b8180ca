package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/clusternode/internal/config"
)

// loadClusterConfig reads the cluster file and lays the optional common file
// under its shared configuration.
func loadClusterConfig(path, commonPath string) (config.File, error) {
	file, err := config.LoadFile(path)
	if err != nil {
		return config.File{}, err
	}
	if strings.TrimSpace(commonPath) != "" {
		common, err := config.LoadCommon(commonPath)
		if err != nil {
			return config.File{}, err
		}
		file.Common = file.Common.WithFallback(common)
	}
	seen := make(map[int]bool, len(file.Nodes))
	for _, node := range file.Nodes {
		if node.Port != 0 && seen[node.Port] {
			return config.File{}, fmt.Errorf("%w: duplicate port %d", config.ErrInvalidNodeSpec, node.Port)
		}
		seen[node.Port] = true
	}
	return file, nil
}
