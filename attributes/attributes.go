// Package attributes converts the identity provider's name/value attribute
// lists into the map shapes the rest of the library works with.
package attributes

import "strings"

// Attribute is a single user attribute as returned by the identity provider.
type Attribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

const verifiedSuffix = "_verified"

// ToMap flattens an attribute list into a name -> value map. Later duplicates
// win, matching the provider's last-writer semantics.
func ToMap(attrs []Attribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name] = a.Value
	}
	return m
}

// Partition splits an attribute list into verified and unverified sets.
// An attribute "<name>_verified" with the value "true" places "<name>" in the
// verified set when the base attribute is present. The "_verified" markers
// themselves are not included in either set.
func Partition(attrs []Attribute) (verified, unverified map[string]string) {
	verified = make(map[string]string)
	unverified = make(map[string]string)

	all := ToMap(attrs)
	for name, value := range all {
		if strings.HasSuffix(name, verifiedSuffix) {
			continue
		}
		if all[name+verifiedSuffix] == "true" {
			verified[name] = value
			continue
		}
		unverified[name] = value
	}
	return verified, unverified
}
