package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Load читает pipeline из YAML файла, нормализует и валидирует его.
func Load(path string) (*domain.PipelineSpec, error) {
	return LoadWith(path, IsValidAction)
}

// LoadWith работает как Load, но набор допустимых действий задаёт known.
func LoadWith(path string, known func(action string) bool) (*domain.PipelineSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	defer f.Close()
	return DecodeWith(f, known)
}

// Parse разбирает YAML описание pipeline.
// Неизвестные поля отклоняются.
func Parse(data []byte) (*domain.PipelineSpec, error) {
	return Decode(bytes.NewReader(data))
}

// Decode читает pipeline из произвольного reader.
func Decode(r io.Reader) (*domain.PipelineSpec, error) {
	return DecodeWith(r, IsValidAction)
}

// DecodeWith работает как Decode, но набор допустимых действий задаёт known.
func DecodeWith(r io.Reader, known func(action string) bool) (*domain.PipelineSpec, error) {
	var spec domain.PipelineSpec

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyPipeline
		}
		return nil, fmt.Errorf("parse pipeline YAML: %w", err)
	}

	Normalize(&spec)

	if err := ValidateWith(&spec, known); err != nil {
		return nil, err
	}

	return &spec, nil
}
