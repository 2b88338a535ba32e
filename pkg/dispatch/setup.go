package dispatch

import (
	"os"
	"path/filepath"
	"strings"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

// SetupScript is the legacy setuptools build script.
const SetupScript = "setup.py"

const setupRequiresKeyword = "setup_requires"

// CheckSetupPy rejects setup scripts that declare build requirements through
// setup_requires. Comment lines are ignored.
func CheckSetupPy(text string) error {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			continue
		}
		if strings.Contains(line, setupRequiresKeyword) {
			return errs.New(errs.ErrCodeSetupRequires,
				"Detected use of 'setup_requires' in a setup.py file. rapids-build-backend "+
					"does not support this option because the requirements it computes are "+
					"not installed yet when setup.py runs, so imports of them would fail. "+
					"List those requirements in the 'requires' option of the "+
					"[tool.rapids-build-backend] table in pyproject.toml instead.")
		}
	}
	return nil
}

// checkSetupPyFile runs CheckSetupPy on dir/setup.py when it exists.
func checkSetupPyFile(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, SetupScript))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return CheckSetupPy(string(data))
}
