package gotest

import (
	"fmt"
	"os"

	"golang.org/x/mod/modfile"
)

// ModulePath reads the module path declared in a go.mod file
func ModulePath(goModPath string) (string, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, content, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in %s", goModPath)
	}
	return modFile.Module.Mod.Path, nil
}
