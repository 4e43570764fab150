package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rushteam/inferkit/core"
)

// 内置的制品 JSON Schema。
const (
	// SchemaMeta 模型元数据：feature_cols 为非空、无重复的列名数组
	SchemaMeta = "meta"

	// SchemaScaler 标准化参数：列名 -> {mean, std}
	SchemaScaler = "scaler"
)

var builtinSchemas = map[string]string{
	SchemaMeta: `{
		"type": "object",
		"required": ["feature_cols"],
		"properties": {
			"feature_cols": {
				"type": "array",
				"minItems": 1,
				"uniqueItems": true,
				"items": {"type": "string", "minLength": 1}
			},
			"cat_cols": {"type": "array", "items": {"type": "string"}},
			"target": {"type": "string"},
			"model_version": {"type": "string"}
		}
	}`,
	SchemaScaler: `{
		"type": "object",
		"additionalProperties": {
			"type": "object",
			"required": ["mean", "std"],
			"properties": {
				"mean": {"type": "number"},
				"std": {"type": "number"}
			}
		}
	}`,
}

// schemaCache 缓存编译后的 schema
var schemaCache sync.Map // map[string]*jsonschema.Schema

func compiledSchema(name string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	def, ok := builtinSchemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown artifact schema %q", name)
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}

// ReadBytes 读取制品全部内容，失败时返回 ARTIFACT_LOAD_ERROR
func ReadBytes(ctx context.Context, s Store, path string) ([]byte, error) {
	rc, err := s.Open(ctx, path)
	if err != nil {
		return nil, core.NewArtifactLoadError(s.Describe(path), err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, core.NewArtifactLoadError(s.Describe(path), err)
	}
	return data, nil
}

// ReadJSON 读取并解析 JSON 制品，失败时返回 ARTIFACT_LOAD_ERROR
func ReadJSON(ctx context.Context, s Store, path string, v any) error {
	data, err := ReadBytes(ctx, s, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.NewArtifactLoadError(s.Describe(path), fmt.Errorf("invalid JSON: %w", err))
	}
	return nil
}

// ReadValidatedJSON 读取 JSON 制品，先按内置 schema 校验再解析到 v
func ReadValidatedJSON(ctx context.Context, s Store, path, schemaName string, v any) error {
	data, err := ReadBytes(ctx, s, path)
	if err != nil {
		return err
	}
	if err := Validate(schemaName, data); err != nil {
		return core.NewArtifactLoadError(s.Describe(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.NewArtifactLoadError(s.Describe(path), fmt.Errorf("invalid JSON: %w", err))
	}
	return nil
}

// Validate 按内置 schema 校验原始 JSON
func Validate(schemaName string, raw []byte) error {
	compiled, err := compiledSchema(schemaName)
	if err != nil {
		return err
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
