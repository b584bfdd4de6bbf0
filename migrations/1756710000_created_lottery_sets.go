package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		categories := core.NewBaseCollection("categories")
		categories.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(categories); err != nil {
			return err
		}

		sets := core.NewBaseCollection("lottery_sets")
		sets.Fields.Add(
			&core.TextField{Name: "title", Required: true},
			&core.RelationField{Name: "category", CollectionId: categories.Id, MaxSelect: 1},
			&core.NumberField{Name: "price", Required: true, OnlyInt: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"UPCOMING", "AVAILABLE", "SOLD_OUT", "ARCHIVED"},
			},
			&core.JSONField{Name: "prize_order", MaxSize: 1 << 20},
			&core.TextField{Name: "pool_seed"},
			&core.TextField{Name: "pool_commitment_hash"},
			&core.JSONField{Name: "drawn_ticket_indices", MaxSize: 1 << 20},
			&core.BoolField{Name: "allow_self_pickup"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(sets); err != nil {
			return err
		}

		prizes := core.NewBaseCollection("prizes")
		prizes.Fields.Add(
			&core.RelationField{Name: "lottery_set", Required: true, CollectionId: sets.Id, MaxSelect: 1, CascadeDelete: true},
			&core.TextField{Name: "grade", Required: true},
			&core.TextField{Name: "name", Required: true},
			&core.SelectField{
				Name:      "type",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"NORMAL", "LAST_ONE"},
			},
			&core.NumberField{Name: "total", OnlyInt: true},
			&core.NumberField{Name: "weight_grams", OnlyInt: true},
			&core.NumberField{Name: "recycle_value", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		prizes.AddIndex("idx_prizes_lottery_set", false, "lottery_set", "")
		return app.Save(prizes)
	}, func(app core.App) error {
		for _, name := range []string{"prizes", "lottery_sets", "categories"} {
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
