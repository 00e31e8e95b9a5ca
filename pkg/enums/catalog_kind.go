package enums

import "fmt"

// CatalogKind names a reference-data collection.
type CatalogKind string

const (
	CatalogEmployees CatalogKind = "employees"
	CatalogMachines  CatalogKind = "machines"
	CatalogSuppliers CatalogKind = "suppliers"
)

var validCatalogKinds = []CatalogKind{
	CatalogEmployees,
	CatalogMachines,
	CatalogSuppliers,
}

// String implements fmt.Stringer.
func (k CatalogKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CatalogKind.
func (k CatalogKind) IsValid() bool {
	for _, candidate := range validCatalogKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Singular returns the human label for a single record of the kind.
func (k CatalogKind) Singular() string {
	switch k {
	case CatalogEmployees:
		return "employee"
	case CatalogMachines:
		return "machine"
	case CatalogSuppliers:
		return "supplier"
	default:
		return string(k)
	}
}

// ParseCatalogKind converts raw input into a CatalogKind.
func ParseCatalogKind(value string) (CatalogKind, error) {
	for _, candidate := range validCatalogKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid catalog kind %q", value)
}
