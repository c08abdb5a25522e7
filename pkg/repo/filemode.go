package repo

import (
	"os"

	"github.com/gitcore/gitcore/pkg/object"
)

func modeFromFileInfo(info os.FileInfo) string {
	if info.Mode()&0o111 != 0 {
		return object.ModeExec
	}
	return object.ModeFile
}

func normalizeFileMode(mode string) string {
	if mode == object.ModeExec {
		return object.ModeExec
	}
	return object.ModeFile
}

func filePermFromMode(mode string) os.FileMode {
	if normalizeFileMode(mode) == object.ModeExec {
		return 0o755
	}
	return 0o644
}
