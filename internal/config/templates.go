package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "toml", "":
		return clusterTOMLTemplate, nil
	case "yaml", "yml":
		return clusterYAMLTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clusterTOMLTemplate = `[system]
name = "cluster"

[cluster]
host = "127.0.0.1"
seed_nodes = ["127.0.0.1:3001"]

[[nodes]]
port = 3001
roles = [["admin", { addr = "127.0.0.1:7001" }], "echo"]

[[nodes]]
port = 3002
roles = [["echo", { name = "echo-b", tag = "echo" }]]
`

const clusterYAMLTemplate = `system:
  name: cluster
cluster:
  host: 127.0.0.1
  seed_nodes: ["127.0.0.1:3001"]
nodes:
  - port: 3001
    roles:
      - [admin, {addr: "127.0.0.1:7001"}]
      - echo
  - port: 3002
    roles:
      - [echo, {name: echo-b, tag: echo}]
`
