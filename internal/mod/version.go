package mod

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// canonical turns "1.2.0" or "v1.2.0" into the "v"-prefixed form semver expects
func canonical(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isDotted reports whether v is made of one to four dot-separated numbers,
// the shape of four-part .NET style versions that semver rejects.
func isDotted(v string) bool {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	if len(parts) == 0 || len(parts) > 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// IsValidVersion reports whether v can be ordered by CompareVersions
func IsValidVersion(v string) bool {
	return semver.IsValid(canonical(v)) || isDotted(v)
}

// CompareVersions returns -1, 0 or +1 depending on whether a is older than,
// equal to or newer than b.
func CompareVersions(a, b string) int {
	ca, cb := canonical(a), canonical(b)
	if semver.IsValid(ca) && semver.IsValid(cb) {
		return semver.Compare(ca, cb)
	}
	return compareDotted(a, b)
}

func compareDotted(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	pb := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var sa, sb string
		if i < len(pa) {
			sa = pa[i]
		}
		if i < len(pb) {
			sb = pb[i]
		}
		na, errA := strconv.Atoi(orZero(sa))
		nb, errB := strconv.Atoi(orZero(sb))
		if errA != nil || errB != nil {
			if c := strings.Compare(sa, sb); c != 0 {
				return c
			}
			continue
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// SortNewestFirst orders versions from newest to oldest in place
func SortNewestFirst(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) > 0
	})
}
