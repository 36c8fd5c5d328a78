package orchestrate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

const (
	MinTimeoutSeconds     = 30
	MaxTimeoutSeconds     = 7200
	DefaultTimeoutSeconds = 900
)

var pinnedImagePattern = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)+@sha256:[a-f0-9]{64}$`)

// ValidateContainerImage accepts only repository references pinned by a
// sha256 digest, e.g. ghcr.io/org/case@sha256:<64 hex>.
func ValidateContainerImage(image string) (reference.Canonical, error) {
	image = strings.TrimSpace(image)
	if !pinnedImagePattern.MatchString(image) {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q is not pinned as repo/path@sha256:<digest>", image), nil)
	}

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q is not a valid reference", image), err)
	}
	canonical, ok := named.(reference.Canonical)
	if !ok {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q carries no digest", image), nil)
	}
	if _, tagged := named.(reference.Tagged); tagged {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q must not carry a tag", image), nil)
	}
	if err := canonical.Digest().Validate(); err != nil {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q has an invalid digest", image), err)
	}
	if canonical.Digest().Algorithm() != digest.SHA256 {
		return nil, domain.InvalidContainerContract(fmt.Sprintf("container image %q must be pinned with sha256", image), nil)
	}
	return canonical, nil
}

// ClampTimeout picks the requested timeout, falling back to the case default,
// and clamps it into [MinTimeoutSeconds, MaxTimeoutSeconds].
func ClampTimeout(requested, caseDefault int) int {
	timeout := requested
	if timeout <= 0 {
		timeout = caseDefault
	}
	return max(MinTimeoutSeconds, min(MaxTimeoutSeconds, timeout))
}
