package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		discounts := core.NewBaseCollection("discounts")
		discounts.Fields.Add(
			&core.TextField{Name: "code", Required: true, Max: 64},
			&core.NumberField{Name: "amount", Required: true, Min: types.Pointer(0.0)},
			&core.BoolField{Name: "active"},
			&core.DateField{Name: "valid_until"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		discounts.AddIndex("idx_discounts_code", true, "code", "")
		return app.Save(discounts)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("discounts")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
