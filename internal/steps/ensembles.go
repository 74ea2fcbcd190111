package steps

import (
	"os"
	"path/filepath"
	"regexp"
)

var ensemblePDBPattern = regexp.MustCompile(`ensemble_size_\d+_model\.pdb$`)

// CountEnsembles counts the best-fit ensemble models the multifoxs stage
// has written under <jobDir>/results. The directory appearing and the
// count growing are how clients watch the final stage make progress, so
// a missing directory means zero, not an error.
func CountEnsembles(jobDir string) (int, string) {
	resultsDir := filepath.Join(jobDir, "results")
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "Results directory not found yet."
		}
		return 0, "Error reading results directory."
	}

	n := 0
	for _, e := range entries {
		if ensemblePDBPattern.MatchString(e.Name()) {
			n++
		}
	}
	if n == 0 {
		return 0, "No ensemble files found yet."
	}
	return n, ""
}
