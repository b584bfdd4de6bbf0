package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		sets, err := app.FindCollectionByNameOrId("lottery_sets")
		if err != nil {
			return err
		}
		prizes, err := app.FindCollectionByNameOrId("prizes")
		if err != nil {
			return err
		}

		instances := core.NewBaseCollection("prize_instances")
		instances.Fields.Add(
			&core.TextField{Name: "uid", Required: true},
			&core.RelationField{Name: "prize", Required: true, CollectionId: prizes.Id, MaxSelect: 1},
			&core.RelationField{Name: "lottery_set", Required: true, CollectionId: sets.Id, MaxSelect: 1},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"IN_INVENTORY", "IN_SHIPMENT", "SHIPPED", "PENDING_PICKUP", "PICKED_UP"},
			},
			&core.BoolField{Name: "is_recycled"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		instances.AddIndex("idx_prize_instances_uid", true, "uid", "")
		instances.AddIndex("idx_prize_instances_user", false, "user", "")
		if err := app.Save(instances); err != nil {
			return err
		}

		orders := core.NewBaseCollection("orders")
		orders.Fields.Add(
			&core.TextField{Name: "uid", Required: true},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "lottery_set", Required: true, CollectionId: sets.Id, MaxSelect: 1},
			&core.JSONField{Name: "ticket_indices", MaxSize: 1 << 20},
			&core.JSONField{Name: "prize_instance_ids", MaxSize: 1 << 20},
			&core.NumberField{Name: "cost_points", OnlyInt: true},
			&core.TextField{Name: "draw_hash", Required: true},
			&core.TextField{Name: "secret_key", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		orders.AddIndex("idx_orders_uid", true, "uid", "")
		orders.AddIndex("idx_orders_lottery_set", false, "lottery_set", "")
		if err := app.Save(orders); err != nil {
			return err
		}

		ledger := core.NewBaseCollection("ledger")
		ledger.Fields.Add(
			&core.TextField{Name: "uid", Required: true},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.SelectField{
				Name:      "type",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"DRAW", "RECYCLE", "SHIPPING"},
			},
			&core.NumberField{Name: "amount", OnlyInt: true},
			&core.TextField{Name: "description"},
			&core.JSONField{Name: "prize_instance_ids", MaxSize: 1 << 20},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		ledger.AddIndex("idx_ledger_user", false, "user", "")
		if err := app.Save(ledger); err != nil {
			return err
		}

		stats := core.NewBaseCollection("lottery_stats")
		stats.Fields.Add(
			&core.RelationField{Name: "lottery_set", Required: true, CollectionId: sets.Id, MaxSelect: 1},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.NumberField{Name: "cumulative_draws", OnlyInt: true},
			&core.NumberField{Name: "extension_credits", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		stats.AddIndex("idx_lottery_stats_set_user", true, "lottery_set, user", "")
		return app.Save(stats)
	}, func(app core.App) error {
		for _, name := range []string{"lottery_stats", "ledger", "orders", "prize_instances"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
