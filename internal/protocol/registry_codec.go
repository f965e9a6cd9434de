package protocol

import (
	"fmt"
	"os"

	"github.com/Tnze/go-mc/nbt"

	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

// registry запись реестра в кодеке Login (play)
type registry[T any] struct {
	Type  string     `nbt:"type"`
	Value []entry[T] `nbt:"value"`
}

type entry[T any] struct {
	Name    string `nbt:"name"`
	ID      int32  `nbt:"id"`
	Element T      `nbt:"element"`
}

type dimensionType struct {
	PiglinSafe                  bool    `nbt:"piglin_safe"`
	HasRaids                    bool    `nbt:"has_raids"`
	MonsterSpawnLightLevel      int32   `nbt:"monster_spawn_light_level"`
	MonsterSpawnBlockLightLimit int32   `nbt:"monster_spawn_block_light_limit"`
	Natural                     bool    `nbt:"natural"`
	AmbientLight                float32 `nbt:"ambient_light"`
	Infiniburn                  string  `nbt:"infiniburn"`
	RespawnAnchorWorks          bool    `nbt:"respawn_anchor_works"`
	HasSkylight                 bool    `nbt:"has_skylight"`
	BedWorks                    bool    `nbt:"bed_works"`
	Effects                     string  `nbt:"effects"`
	MinY                        int32   `nbt:"min_y"`
	Height                      int32   `nbt:"height"`
	LogicalHeight               int32   `nbt:"logical_height"`
	CoordinateScale             float64 `nbt:"coordinate_scale"`
	Ultrawarm                   bool    `nbt:"ultrawarm"`
	HasCeiling                  bool    `nbt:"has_ceiling"`
}

type biomeEffects struct {
	SkyColor      int32 `nbt:"sky_color"`
	WaterFogColor int32 `nbt:"water_fog_color"`
	FogColor      int32 `nbt:"fog_color"`
	WaterColor    int32 `nbt:"water_color"`
}

type biome struct {
	HasPrecipitation bool         `nbt:"has_precipitation"`
	Temperature      float32      `nbt:"temperature"`
	Downfall         float32      `nbt:"downfall"`
	Effects          biomeEffects `nbt:"effects"`
}

type registryCodec struct {
	DimensionTypes registry[dimensionType] `nbt:"minecraft:dimension_type"`
	Biomes         registry[biome]         `nbt:"minecraft:worldgen/biome"`
}

// DefaultRegistryCodec минимальный кодек: один тип измерения под dim и биом plains.
// Для ванильного клиента нужен полный кодек, см. LoadRegistryCodec.
func DefaultRegistryCodec(dim chunk.Dimension) any {
	return registryCodec{
		DimensionTypes: registry[dimensionType]{
			Type: "minecraft:dimension_type",
			Value: []entry[dimensionType]{{
				Name: dim.Name,
				ID:   0,
				Element: dimensionType{
					MonsterSpawnLightLevel: 0,
					Natural:                true,
					Infiniburn:             "#minecraft:infiniburn_overworld",
					HasSkylight:            true,
					BedWorks:               true,
					HasRaids:               true,
					Effects:                "minecraft:overworld",
					MinY:                   int32(dim.MinY),
					Height:                 int32(dim.Height),
					LogicalHeight:          int32(dim.Height),
					CoordinateScale:        1,
				},
			}},
		},
		Biomes: registry[biome]{
			Type: "minecraft:worldgen/biome",
			Value: []entry[biome]{{
				Name: "minecraft:plains",
				ID:   0,
				Element: biome{
					HasPrecipitation: true,
					Temperature:      0.8,
					Downfall:         0.4,
					Effects: biomeEffects{
						SkyColor:      7907327,
						WaterFogColor: 329011,
						FogColor:      12638463,
						WaterColor:    4159204,
					},
				},
			}},
		},
	}
}

// LoadRegistryCodec читает несжатый NBT-файл кодека (например, выгруженный из ванильного сервера)
func LoadRegistryCodec(path string) (nbt.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nbt.RawMessage{}, fmt.Errorf("open registry codec: %w", err)
	}
	defer f.Close()

	var raw nbt.RawMessage
	if _, err := nbt.NewDecoder(f).Decode(&raw); err != nil {
		return nbt.RawMessage{}, fmt.Errorf("decode registry codec %s: %w", path, err)
	}
	return raw, nil
}
