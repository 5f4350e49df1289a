package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Language struct {
	Name      string   `toml:"name"`
	FileTypes []string `toml:"file-types"`
}

type Languages struct {
	Languages []Language `toml:"language"`
}

func (l Languages) Match(path string) *Language {
	base := filepath.Base(path)
	baseLower := strings.ToLower(base)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	for i := range l.Languages {
		lang := &l.Languages[i]
		for _, ft := range lang.FileTypes {
			ftLower := strings.ToLower(ft)
			if ftLower == ext || ftLower == baseLower {
				return lang
			}
			if strings.HasPrefix(ftLower, ".") && strings.TrimPrefix(ftLower, ".") == ext {
				return lang
			}
		}
	}
	return nil
}

// DefaultLanguages covers the handful of file types the shell ships
// with; languages.toml extends or overrides it.
func DefaultLanguages() Languages {
	return Languages{
		Languages: []Language{
			{Name: "go", FileTypes: []string{"go"}},
			{Name: "typescript", FileTypes: []string{"ts", "tsx"}},
			{Name: "javascript", FileTypes: []string{"js", "jsx", "mjs"}},
			{Name: "rust", FileTypes: []string{"rs"}},
			{Name: "python", FileTypes: []string{"py"}},
			{Name: "markdown", FileTypes: []string{"md", "markdown"}},
			{Name: "json", FileTypes: []string{"json"}},
			{Name: "toml", FileTypes: []string{"toml"}},
			{Name: "html", FileTypes: []string{"html", "htm"}},
			{Name: "css", FileTypes: []string{"css"}},
		},
	}
}

func LoadLanguages() (Languages, error) {
	cfg := DefaultLanguages()
	path, err := LanguagesPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var user Languages
	if _, err := toml.Decode(string(data), &user); err != nil {
		return cfg, err
	}
	// User entries take precedence over the built-in table.
	cfg.Languages = append(user.Languages, cfg.Languages...)
	return cfg, nil
}

func LanguagesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "languages.toml"), nil
}
