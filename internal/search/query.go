package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// ParseQuery decodes the query string form written by QuerySpec.Encode. A
// leading '?' is ignored, "regexp" is accepted for "regex", and an absent flag
// is false. Unknown parameters are ignored.
func ParseQuery(raw string) (types.QuerySpec, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return types.QuerySpec{}, xreferrors.NewQueryError(raw, err)
	}
	return FromValues(values)
}

// FromValues reads a QuerySpec from already decoded parameters
func FromValues(values url.Values) (types.QuerySpec, error) {
	spec := types.QuerySpec{
		Pattern:    values.Get("q"),
		PathFilter: values.Get("path"),
	}

	var err error
	if spec.CaseSensitive, err = parseFlag(values, "case"); err != nil {
		return types.QuerySpec{}, err
	}
	if values.Has("regex") {
		spec.Regex, err = parseFlag(values, "regex")
	} else {
		spec.Regex, err = parseFlag(values, "regexp")
	}
	if err != nil {
		return types.QuerySpec{}, err
	}
	return spec, nil
}

func parseFlag(values url.Values, name string) (bool, error) {
	v := values.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, xreferrors.NewQueryError(values.Get("q"), fmt.Errorf("%s=%q is not a boolean", name, v))
	}
	return b, nil
}
