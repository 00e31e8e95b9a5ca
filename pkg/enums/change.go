package enums

import "fmt"

// Collection names a subscribable record set.
type Collection string

const (
	CollectionItems       Collection = "items"
	CollectionUsageLog    Collection = "usage_log"
	CollectionPurchaseLog Collection = "purchase_log"
	CollectionEmployees   Collection = "employees"
	CollectionMachines    Collection = "machines"
	CollectionSuppliers   Collection = "suppliers"
	CollectionUsers       Collection = "users"
)

var validCollections = []Collection{
	CollectionItems,
	CollectionUsageLog,
	CollectionPurchaseLog,
	CollectionEmployees,
	CollectionMachines,
	CollectionSuppliers,
	CollectionUsers,
}

// IsValid reports whether the value is a known Collection.
func (c Collection) IsValid() bool {
	for _, candidate := range validCollections {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCollection converts raw input into a Collection.
func ParseCollection(value string) (Collection, error) {
	for _, candidate := range validCollections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid collection %q", value)
}

// CollectionForCatalog maps a catalog kind to its change-feed collection.
func CollectionForCatalog(kind CatalogKind) Collection {
	return Collection(kind)
}

// ChangeOp is the mutation type carried by a change event.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// IsValid reports whether the value is a known ChangeOp.
func (o ChangeOp) IsValid() bool {
	return o == ChangeUpsert || o == ChangeDelete
}
