package static

import (
	"context"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

type factionRecord struct {
	NameID               int64   `mapstructure:"nameID" fsd:"required"`
	DescriptionID        int64   `mapstructure:"descriptionID" fsd:"required"`
	ShortDescriptionID   *int64  `mapstructure:"shortDescriptionID"`
	CorporationID        *int64  `mapstructure:"corporationID"`
	IconID               int64   `mapstructure:"iconID" fsd:"required"`
	MemberRaces          []int64 `mapstructure:"memberRaces"`
	UniqueName           bool    `mapstructure:"uniqueName"`
	FlatLogo             *string `mapstructure:"flatLogo"`
	FlatLogoWithName     *string `mapstructure:"flatLogoWithName"`
	SolarSystemID        int64   `mapstructure:"solarSystemID" fsd:"required"`
	MilitiaCorporationID *int64  `mapstructure:"militiaCorporationID"`
	SizeFactor           float64 `mapstructure:"sizeFactor" fsd:"required"`
}

func writeFactions(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "factions")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[factionRecord](env, "factions", raw)
	if err != nil {
		return err
	}
	factions := make([]wire.Faction, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		v := rec.Value
		factions = append(factions, wire.Faction{
			FactionID:            id,
			NameID:               v.NameID,
			DescriptionID:        v.DescriptionID,
			ShortDescriptionID:   v.ShortDescriptionID,
			CorporationID:        v.CorporationID,
			IconID:               v.IconID,
			MemberRaces:          v.MemberRaces,
			UniqueName:           v.UniqueName,
			FlatLogo:             v.FlatLogo,
			FlatLogoWithName:     v.FlatLogoWithName,
			SolarSystemID:        v.SolarSystemID,
			MilitiaCorporationID: v.MilitiaCorporationID,
			SizeFactor:           v.SizeFactor,
		})
	}
	return writeFile(env, d.staticFile(FactionsFile), "factions_written", len(factions), wire.MarshalFactions(factions))
}
