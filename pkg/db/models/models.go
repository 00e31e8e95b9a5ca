package models

import "gorm.io/gorm"

// All lists every table model in dependency order.
func All() []any {
	return []any{
		&Item{},
		&Employee{},
		&Machine{},
		&Supplier{},
		&UsageEvent{},
		&PurchaseEvent{},
		&UserAccount{},
		&Credential{},
		&OutboxEvent{},
	}
}

// AutoMigrate creates the schema through GORM. Postgres deployments use the
// goose migrations instead; this path serves SQLite dev databases and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
