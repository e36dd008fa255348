package scene

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
)

// materialColors maps material/formation keywords to display colors.
// Lookup is by substring match on the lowercased name; names matching no
// keyword fall back to a hash-derived color so the same label always
// yields the same RGB triple across runs and processes.
var materialColors = map[string]string{
	"sandstone":   "#F4A460",
	"claystone":   "#8B4513",
	"limestone":   "#D3D3D3",
	"mudstone":    "#696969",
	"bedrock":     "#2F4F4F",
	"quaternary":  "#90EE90",
	"fill":        "#BC8F5F",
	"clay":        "#8B5A2B",
	"sand":        "#EED9A4",
	"silt":        "#C4A777",
	"gravel":      "#9E9E8E",
	"fault":       "#DC143C",
	"water_table": "#4169E1",
}

// colorKeywords holds the keyword table keys in deterministic match
// order: longest first so "sandstone" wins over "sand", ties broken
// alphabetically.
var colorKeywords = func() []string {
	keys := make([]string, 0, len(materialColors))
	for k := range materialColors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// ColorForName resolves the display color for a material or formation
// name. Exact keyword matches are tried first; unknown names get a
// deterministic FNV-hash-derived HSV color.
func ColorForName(name string) [3]float32 {
	lower := strings.ToLower(name)
	for _, key := range colorKeywords {
		if strings.Contains(lower, key) {
			return hexToRGB(materialColors[key])
		}
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	hue := float64(h.Sum32() % 360)
	return hsvToRGB(hue, 0.7, 0.8)
}

func hexToRGB(hex string) [3]float32 {
	hex = strings.TrimPrefix(hex, "#")
	var rgb [3]float32
	for i := 0; i < 3; i++ {
		v := 0
		for _, c := range hex[2*i : 2*i+2] {
			v = v*16 + hexDigit(c)
		}
		rgb[i] = float32(v) / 255.0
	}
	return rgb
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 0
	}
}

// hsvToRGB converts hue (degrees), saturation and value in [0,1] to RGB.
func hsvToRGB(h, s, v float64) [3]float32 {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return [3]float32{float32(r + m), float32(g + m), float32(b + m)}
}
