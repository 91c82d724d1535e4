package config

import (
	"encoding/json"

	"gopkg.in/yaml.v2"
)

// Serializer 配置文件格式
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Exts() []string // 识别的文件后缀，第一个用于查找默认文件
	Name() string
}

// YAMLSerializer YAML格式
type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(v interface{}) ([]byte, error)      { return yaml.Marshal(v) }
func (YAMLSerializer) Unmarshal(data []byte, v interface{}) error { return yaml.Unmarshal(data, v) }
func (YAMLSerializer) Exts() []string                             { return []string{".yml", ".yaml"} }
func (YAMLSerializer) Name() string                               { return "yaml" }

// JSONSerializer JSON格式
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v interface{}) ([]byte, error)      { return json.MarshalIndent(v, "", "  ") }
func (JSONSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (JSONSerializer) Exts() []string                             { return []string{".json"} }
func (JSONSerializer) Name() string                               { return "json" }
