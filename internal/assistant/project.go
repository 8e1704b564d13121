package assistant

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/docsync/internal/config"
)

// ResolveProject returns explicit when set, otherwise the projectName from
// the nearest document-sync.json found by walking up from start (or from
// projectPath when it is set).
func ResolveProject(explicit, start, projectPath string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	root, err := config.FindSettings(start, projectPath)
	if errors.Is(err, config.ErrNoSettings) {
		return "", fmt.Errorf("%w: pass a project name or create %s", config.ErrNoProject, config.SettingsFileName)
	}

	if err != nil {
		return "", err
	}

	settings, err := config.LoadSettings(root)
	if err != nil {
		return "", err
	}

	if settings.ProjectName == "" {
		return "", fmt.Errorf("%w: %s in %s has no projectName", config.ErrNoProject, config.SettingsFileName, root)
	}

	return settings.ProjectName, nil
}
