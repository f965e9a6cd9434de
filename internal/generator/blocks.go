package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GauntletMC/Graphite/internal/world/palette"
)

// Состояния блоков протокола 763 (состояние по умолчанию)
const (
	Air        palette.Value = 0
	Stone      palette.Value = 1
	GrassBlock palette.Value = 9
	Dirt       palette.Value = 10
	Bedrock    palette.Value = 79
	Water      palette.Value = 80
	Sand       palette.Value = 112
	Gravel     palette.Value = 114
)

// Plains единственный биом реестра по умолчанию
const Plains palette.Value = 0

var blockNames = map[string]palette.Value{
	"air":         Air,
	"stone":       Stone,
	"grass_block": GrassBlock,
	"dirt":        Dirt,
	"bedrock":     Bedrock,
	"water":       Water,
	"sand":        Sand,
	"gravel":      Gravel,
}

// BlockByName состояние блока по имени, префикс minecraft: необязателен
func BlockByName(name string) (palette.Value, bool) {
	v, ok := blockNames[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "minecraft:")]
	return v, ok
}

// Layer слой плоского мира снизу вверх
type Layer struct {
	Block  palette.Value
	Height int
}

// ParseLayers разбирает описание слоёв вида "bedrock,dirt*2,grass_block"
func ParseLayers(s string) ([]Layer, error) {
	var layers []Layer
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count := part, 1
		if i := strings.IndexByte(part, '*'); i >= 0 {
			n, err := strconv.Atoi(strings.TrimSpace(part[i+1:]))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("layer %q: bad height", part)
			}
			name, count = part[:i], n
		}
		v, ok := BlockByName(name)
		if !ok {
			return nil, fmt.Errorf("layer %q: unknown block %q", part, name)
		}
		layers = append(layers, Layer{Block: v, Height: count})
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers in %q", s)
	}
	return layers, nil
}
