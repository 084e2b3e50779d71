package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shoveld/internal/model"
)

// loadSetConfiguration reads a ReplicationSetConfiguration from a YAML
// file of the form:
//
//	databases:
//	  - dsn: "postgres://..."
//	tables:
//	  - schema: public
//	    name: orders
//	    primary_keys: [id]
//	    columns: [status, total]
func loadSetConfiguration(path string) (model.ReplicationSetConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ReplicationSetConfiguration{}, fmt.Errorf("read set configuration %s: %w", path, err)
	}

	var cfg model.ReplicationSetConfiguration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.ReplicationSetConfiguration{}, fmt.Errorf("parse set configuration %s: %w", path, err)
	}

	if err := model.ValidateSetConfiguration(cfg); err != nil {
		return model.ReplicationSetConfiguration{}, err
	}
	return cfg, nil
}
