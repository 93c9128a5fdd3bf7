package database

import (
	"fmt"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/log"
)

// Models lists every table the marketplace owns, parents first
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Vendor{},
		&model.VendorShop{},
		&model.VendorPlanHistory{},
		&model.VendorBadge{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderFulfillment{},
		&model.Review{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.SupportTicket{},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Debugf("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes create composite indexes the struct tags do not express
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		table string
		name  string
		sql   string
	}{
		{
			table: "orders",
			name:  "idx_orders_user_created",
			sql:   "CREATE INDEX idx_orders_user_created ON orders (user_id, created_at)",
		},
		{
			table: "order_fulfillments",
			name:  "idx_fulfillments_vendor_status",
			sql:   "CREATE INDEX idx_fulfillments_vendor_status ON order_fulfillments (vendor_id, status, created_at)",
		},
		{
			table: "support_tickets",
			name:  "idx_tickets_vendor_status",
			sql:   "CREATE INDEX idx_tickets_vendor_status ON support_tickets (vendor_id, status)",
		},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}
		if err := db.Exec(idx.sql).Error; err != nil {
			log.Warnf("Failed to create index %s on table %s: %v", idx.name, idx.table, err)
		} else {
			log.Infof("Created index: %s on table %s", idx.name, idx.table)
		}
	}
	return nil
}

// CheckTables reports tables missing from the connected schema
func CheckTables(db *gorm.DB) ([]string, error) {
	var missing []string
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("failed to parse %T: %w", m, err)
		}
		if !db.Migrator().HasTable(stmt.Schema.Table) {
			log.Warnf("Table not found: %s", stmt.Schema.Table)
			missing = append(missing, stmt.Schema.Table)
		}
	}
	return missing, nil
}
