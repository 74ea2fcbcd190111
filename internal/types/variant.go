package types

import "fmt"

// JobVariant identifies the pipeline shape of a submission. The set is
// closed; anything else is rejected before any enqueue happens.
type JobVariant string

const (
	VariantPDB       JobVariant = "pdb"
	VariantCRDPSF    JobVariant = "crd_psf"
	VariantAuto      JobVariant = "auto"
	VariantScoper    JobVariant = "scoper"
	VariantSANS      JobVariant = "sans"
	VariantAlphaFold JobVariant = "alphafold"
	VariantMulti     JobVariant = "multi"
)

var allVariants = []JobVariant{
	VariantPDB, VariantCRDPSF, VariantAuto, VariantScoper,
	VariantSANS, VariantAlphaFold, VariantMulti,
}

func ParseVariant(s string) (JobVariant, error) {
	for _, v := range allVariants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVariant, s)
}

// NeedsConversion reports whether the variant requires a PDB-to-CRD/PSF
// conversion job to finish before the terminal job may be enqueued.
func (v JobVariant) NeedsConversion() bool {
	return v == VariantPDB || v == VariantAuto
}

func Variants() []JobVariant {
	out := make([]JobVariant, len(allVariants))
	copy(out, allVariants)
	return out
}
