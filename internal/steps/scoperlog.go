package steps

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ScoperStatus is the fine-grained progress of a scoper pipeline run,
// derived from its scoper.log plus the KGS output directory. Unlike the
// queue-log projection this comes from tool output the worker writes to
// the job directory.
type ScoperStatus struct {
	Reduce                string  `json:"reduce"`
	Rnaview               string  `json:"rnaview"`
	KGS                   string  `json:"kgs"`
	KGSConformations      int     `json:"kgsConformations"`
	KGSFiles              int     `json:"kgsFiles"`
	FoXS                  string  `json:"foxs"`
	FoXSTopFile           string  `json:"foxsTopFile"`
	FoXSTopScore          float64 `json:"foxsTopScore"`
	CreatedFeatures       bool    `json:"createdFeatures"`
	IonNet                string  `json:"IonNet"`
	PredictionThreshold   float64 `json:"predictionThreshold"`
	MultiFoXS             string  `json:"multifoxs"`
	MultiFoXSEnsembleSize int     `json:"multifoxsEnsembleSize"`
	MultiFoXSScore        float64 `json:"multifoxsScore"`
	Scoper                string  `json:"scoper"`
	Results               string  `json:"results"`
	Email                 string  `json:"email"`
}

func newScoperStatus() ScoperStatus {
	return ScoperStatus{
		Reduce:    StatusUnset,
		Rnaview:   StatusUnset,
		KGS:       StatusUnset,
		FoXS:      StatusUnset,
		IonNet:    StatusUnset,
		MultiFoXS: StatusUnset,
		Scoper:    StatusUnset,
		Results:   StatusUnset,
		Email:     StatusUnset,
	}
}

var (
	reKGSSamples    = regexp.MustCompile(`Running KGS with (\d+) samples`)
	reFoXSScores    = regexp.MustCompile(`Getting FoXS scores for (\d+) structures`)
	reFoXSTop       = regexp.MustCompile(`top_k_pdbs: \[\('(.+\.pdb)', (\d+\.\d+)\)\]`)
	reThreshold     = regexp.MustCompile(`Predicting with a threshold value of (\d+\.\d+)`)
	reEnsembleSize  = regexp.MustCompile(`predicted ensemble is of size: (\d+)`)
	reEnsembleScore = regexp.MustCompile(`The lowest scoring ensemble is (\d+\.\d+)`)
	reKGSOutputPDB  = regexp.MustCompile(`^newpdb_(\d+)\.pdb$`)
)

// ScoperStatusFor reads the scoper.log under jobDir and the KGS output
// directory for pdbFile and folds both into a status. A missing log file
// is not an error; the run simply has not produced one yet.
func ScoperStatusFor(jobDir, pdbFile string) (ScoperStatus, error) {
	status := newScoperStatus()

	kgsDir := filepath.Join(jobDir, "KGSRNA", pdbFile, "output")
	status.KGSFiles = kgsProgress(kgsDir)

	f, err := os.Open(filepath.Join(jobDir, "scoper.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return status, nil
		}
		return status, fmt.Errorf("open scoper.log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parseScoperLine(scanner.Text(), &status)
	}
	if err := scanner.Err(); err != nil {
		return status, fmt.Errorf("read scoper.log: %w", err)
	}

	if status.KGSConformations > 0 && status.KGSFiles == status.KGSConformations {
		status.KGS = StatusEnd
	}
	return status, nil
}

func parseScoperLine(line string, status *ScoperStatus) {
	switch {
	case strings.Contains(line, "Adding hydrogens"):
		status.Reduce = StatusEnd
	case strings.Contains(line, "Running rnaview on input pdb"):
		status.Rnaview = StatusEnd
	case reKGSSamples.MatchString(line):
		m := reKGSSamples.FindStringSubmatch(line)
		status.KGS = StatusStart
		status.KGSConformations, _ = strconv.Atoi(m[1])
	case reFoXSScores.MatchString(line):
		status.FoXS = StatusStart
	case reFoXSTop.MatchString(line):
		m := reFoXSTop.FindStringSubmatch(line)
		status.FoXS = StatusEnd
		status.FoXSTopFile = m[1]
		status.FoXSTopScore, _ = strconv.ParseFloat(m[2], 64)
	case strings.Contains(line, "Finished creating raw features"):
		status.CreatedFeatures = true
	case strings.Contains(line, "Predicting with a threshold value of"):
		if m := reThreshold.FindStringSubmatch(line); m != nil {
			status.PredictionThreshold, _ = strconv.ParseFloat(m[1], 64)
		}
	case strings.Contains(line, "Running MultiFoXS Combination"):
		status.IonNet = StatusEnd
		status.MultiFoXS = StatusStart
	case strings.Contains(line, "predicted ensemble is of size:"):
		if m := reEnsembleSize.FindStringSubmatch(line); m != nil {
			status.MultiFoXS = StatusEnd
			status.MultiFoXSEnsembleSize, _ = strconv.Atoi(m[1])
		}
	case strings.Contains(line, "The lowest scoring ensemble is"):
		if m := reEnsembleScore.FindStringSubmatch(line); m != nil {
			status.MultiFoXSScore, _ = strconv.ParseFloat(m[1], 64)
		}
	}
}

// kgsProgress returns the highest conformation number written so far,
// taken from newpdb_N.pdb names in the KGS output directory. Zero when
// the directory is missing or holds no conformations yet.
func kgsProgress(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	max := 0
	for _, e := range entries {
		m := reKGSOutputPDB.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}
