package core

import (
	"fmt"
	"strings"
)

// MalformedPolicy decides what a listing does with a stored row that cannot be decoded.
type MalformedPolicy string

const (
	// PolicyFail returns the MalformedRecordError to the caller.
	PolicyFail MalformedPolicy = "fail"
	// PolicySkip drops the row from listings and logs it.
	PolicySkip MalformedPolicy = "skip"
	// PolicyDefault keeps the row with defaults substituted for the unreadable columns.
	PolicyDefault MalformedPolicy = "default"
)

func ParseMalformedPolicy(name string) (MalformedPolicy, error) {
	switch p := MalformedPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case PolicyFail, PolicySkip, PolicyDefault:
		return p, nil
	case "":
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown malformed-row policy %q", name)
	}
}
