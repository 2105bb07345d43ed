package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// FileOptions is the Starlark dialect candidates are written in.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Source is an immutable candidate script. File keeps comments so the
// quality scorer can inspect them.
type Source struct {
	Name string
	Path string
	Text []byte
	Hash string
	File *syntax.File
}

func ReadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Reason: ReasonRead, Detail: err.Error(), Err: err}
	}
	return NewSource(path, data)
}

// NewSource parses text. A syntax error is a LoadError.
func NewSource(path string, text []byte) (*Source, error) {
	f, err := FileOptions.Parse(path, text, syntax.RetainComments)
	if err != nil {
		return nil, &LoadError{Reason: ReasonSyntax, Detail: err.Error(), Err: err}
	}
	sum := sha256.Sum256(text)
	return &Source{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
		Text: text,
		Hash: hex.EncodeToString(sum[:]),
		File: f,
	}, nil
}

// Lines splits the source text into lines without terminators.
func (s *Source) Lines() []string {
	return strings.Split(strings.ReplaceAll(string(s.Text), "\r\n", "\n"), "\n")
}

// NewInlineSource parses text that has no file on disk, such as an upload.
func NewInlineSource(name string, text []byte) (*Source, error) {
	src, err := NewSource(name+".star", text)
	if err != nil {
		return nil, err
	}
	src.Path = ""
	return src, nil
}
