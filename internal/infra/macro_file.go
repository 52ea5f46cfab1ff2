package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/pretty"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// ReadMacroFile loads a JSON action list.
func ReadMacroFile(path string) ([]domain.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read macro: %w", err)
	}
	actions, err := domain.UnmarshalActions(data)
	if err != nil {
		return nil, fmt.Errorf("macro %s: %w", path, err)
	}
	return actions, nil
}

// WriteMacroFile saves actions as indented JSON, replacing path atomically.
func WriteMacroFile(path string, actions []domain.Action) error {
	data, err := domain.MarshalActions(actions)
	if err != nil {
		return err
	}
	data = pretty.PrettyOptions(data, &pretty.Options{Width: 100, Indent: "  "})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create macro directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create macro file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write macro: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write macro: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install macro: %w", err)
	}
	return nil
}
