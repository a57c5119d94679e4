package model

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Access is the declared accessibility of a source element.
type Access int

const (
	AccessPackage Access = iota
	AccessPublic
	AccessProtected
	AccessPrivate
)

var accessNames = map[Access]string{
	AccessPackage:   "package",
	AccessPublic:    "public",
	AccessProtected: "protected",
	AccessPrivate:   "private",
}

func (a Access) String() string {
	if s, ok := accessNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// ParseAccess parses one of "public", "protected", "package" or "private".
func ParseAccess(s string) (Access, error) {
	for a, name := range accessNames {
		if strings.EqualFold(s, name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("invalid access %q, must be one of: public, protected, package, private", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Access) MarshalText() ([]byte, error) {
	if _, ok := accessNames[a]; !ok {
		return nil, fmt.Errorf("invalid access %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Access) UnmarshalText(text []byte) error {
	v, err := ParseAccess(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Eligible reports whether a method with this access may be wrapped.
func (a Access) Eligible() bool {
	return a != AccessPrivate
}

// Exported reports whether the access renders as an exported Go identifier.
// Go has no protected visibility; protected members are reachable from
// other packages, so they are exported.
func (a Access) Exported() bool {
	return a == AccessPublic || a == AccessProtected
}

// AccessPolicy selects the accessibility of a generated element.
type AccessPolicy int

const (
	// PolicyDerived copies the accessibility of the original element.
	PolicyDerived AccessPolicy = iota
	// PolicyPublic always generates a public element.
	PolicyPublic
	// PolicyPackage always generates a package-private element.
	PolicyPackage
)

var policyNames = map[AccessPolicy]string{
	PolicyDerived: "derived",
	PolicyPublic:  "public",
	PolicyPackage: "package",
}

func (p AccessPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("AccessPolicy(%d)", int(p))
}

// ParseAccessPolicy parses one of "derived", "public" or "package".
func ParseAccessPolicy(s string) (AccessPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid access policy %q, must be one of: derived, public, package", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p AccessPolicy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("invalid access policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *AccessPolicy) UnmarshalText(text []byte) error {
	v, err := ParseAccessPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Resolve returns the accessibility of a generated element.
// PolicyDerived yields declared unchanged; the other policies override it.
func Resolve(declared Access, policy AccessPolicy) Access {
	switch policy {
	case PolicyPublic:
		return AccessPublic
	case PolicyPackage:
		return AccessPackage
	default:
		return declared
	}
}

// AccessOf returns the access of a Go identifier.
func AccessOf(name string) Access {
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return AccessPublic
	}
	return AccessPackage
}

// Ident renders name as a Go identifier with the given access by changing
// the case of its first letter. Names starting with a non-letter are returned
// unchanged.
func Ident(name string, access Access) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 || !unicode.IsLetter(r) {
		return name
	}
	if access.Exported() {
		r = unicode.ToUpper(r)
	} else {
		r = unicode.ToLower(r)
	}
	return string(r) + name[size:]
}
