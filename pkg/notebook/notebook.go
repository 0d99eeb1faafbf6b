// Package notebook reads Jupyter notebook (.ipynb) documents from a local
// filesystem and prepares them for upload to a remote workspace.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotExist is returned when the notebook file does not exist.
var ErrNotExist = errors.New("notebook file does not exist")

// Format is the workspace import format for Jupyter documents.
const Format = "JUPYTER"

// Notebook is a parsed .ipynb document. Only the fields needed to classify the
// document are decoded; Raw holds the file bytes as read, which are what
// gets uploaded.
type Notebook struct {
	NBFormat      int      `json:"nbformat"`
	NBFormatMinor int      `json:"nbformat_minor"`
	Metadata      Metadata `json:"metadata"`
	Cells         []Cell   `json:"cells"`
	Raw           []byte   `json:"-"`
}

// Metadata is the top-level notebook metadata.
type Metadata struct {
	KernelSpec   *KernelSpec   `json:"kernelspec,omitempty"`
	LanguageInfo *LanguageInfo `json:"language_info,omitempty"`
}

// KernelSpec describes the kernel the notebook was written for.
type KernelSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

// LanguageInfo describes the notebook's programming language.
type LanguageInfo struct {
	Name string `json:"name"`
}

// Cell is one notebook cell.
type Cell struct {
	CellType string `json:"cell_type"`
}

// Exists reports whether path names an existing regular file on fs.
func Exists(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking notebook file: %w", err)
	}
	return !info.IsDir(), nil
}

// Read loads and parses the notebook at path.
func Read(fs afero.Fs, path string) (*Notebook, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading notebook file: %w", err)
	}

	return Parse(data)
}

// Parse decodes notebook JSON. The document is otherwise passed through as-is;
// format versions and cell layout are left to the workspace importer.
func Parse(data []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("error parsing notebook JSON: %w", err)
	}

	nb.Raw = data
	return &nb, nil
}

// Language returns the workspace language for the notebook, e.g. "PYTHON",
// or an empty string when the notebook does not declare one.
func (nb *Notebook) Language() string {
	var lang string
	switch {
	case nb.Metadata.KernelSpec != nil && nb.Metadata.KernelSpec.Language != "":
		lang = nb.Metadata.KernelSpec.Language
	case nb.Metadata.LanguageInfo != nil:
		lang = nb.Metadata.LanguageInfo.Name
	}

	switch strings.ToLower(lang) {
	case "python":
		return "PYTHON"
	case "scala":
		return "SCALA"
	case "r":
		return "R"
	case "sql":
		return "SQL"
	default:
		return ""
	}
}
