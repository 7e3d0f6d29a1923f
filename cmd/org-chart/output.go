package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(1, errors.Wrap(err, "json encode"))
	}
	return nil
}

// writeOutput writes content to path, or to w when path is "-".
func writeOutput(w io.Writer, path string, content []byte) error {
	if path == "-" {
		_, err := w.Write(content)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return withCode(exitUsage, errors.Wrapf(err, "mkdir %s", dir))
		}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return withCode(exitUsage, errors.Wrapf(err, "write %s", path))
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, errors.Wrapf(err, "read %s", path))
	}
	return b, nil
}
