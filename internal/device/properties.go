package device

import "strconv"

// Wire property IDs for the realtime property-map shape. These codes are
// the vendor protocol contract and must not drift.
var acPropertyNames = map[string]string{
	"0":  "target_temperature",
	"1":  "swing_mode",
	"2":  "mode",
	"4":  "fan_mode",
	"16": "quiet",
	"17": "turbo",
	"18": "health",
	"19": "comfort",
	"21": "status",
	"28": "light",
	"30": "sound",
	"31": "cleaning",
	"33": "antifreeze",
	"36": "current_temperature",
}

// The device-configuration attribute shape reuses the same codes, except
// that the vendor maps "31" to auto-humidity there instead of
// self-cleaning. Known protocol collision; both mappings are kept.
var acAttributeNames = func() map[string]string {
	names := make(map[string]string, len(acPropertyNames))
	for code, name := range acPropertyNames {
		names[code] = name
	}
	names["31"] = "auto_humidity"
	return names
}()

var refPropertyNames = map[string]string{
	"1":  "compartment_temperature",
	"2":  "freezer_temperature",
	"3":  "my_zone_temperature",
	"4":  "super_cool",
	"5":  "super_freeze",
	"6":  "vacation",
	"7":  "compartment_door",
	"8":  "freezer_door",
	"21": "status",
	"36": "current_temperature",
}

// Fallback wire IDs used when a model is not in the registry.
var defaultWireIDs = map[string]string{
	"target_temperature":      "0",
	"swing_mode":              "1",
	"mode":                    "2",
	"fan_mode":                "4",
	"quiet":                   "16",
	"turbo":                   "17",
	"health":                  "18",
	"comfort":                 "19",
	"status":                  "21",
	"light":                   "28",
	"sound":                   "30",
	"cleaning":                "31",
	"auto_humidity":           "31",
	"antifreeze":              "33",
	"current_temperature":     "36",
	"compartment_temperature": "1",
	"freezer_temperature":     "2",
	"my_zone_temperature":     "3",
	"super_cool":              "4",
	"super_freeze":            "5",
	"vacation":                "6",
	"sleep":                   "34",
	"boost":                   "35",
}

// Operating mode codes.
var modeNames = map[string]string{
	"0": "auto",
	"1": "cool",
	"2": "dry",
	"4": "heat",
	"6": "fan",
}

var modeCodes = reverse(modeNames)

// Fan speed codes.
var fanNames = map[string]string{
	"1": "high",
	"2": "medium",
	"3": "low",
	"5": "auto",
}

var fanCodes = reverse(fanNames)

// Louver positions: off, five fixed tilts, the two extremes, auto sweep
// and the vendor "special" hold position.
var swingNames = map[string]string{
	"0": "off",
	"1": "position_1",
	"2": "position_2",
	"3": "position_3",
	"4": "position_4",
	"5": "position_5",
	"6": "upper",
	"7": "bottom",
	"8": "auto",
	"9": "special",
}

var swingCodes = reverse(swingNames)

// Forward tilt table: named position to degrees. The reverse direction
// below is a separate table; the two are only loosely inverse and neither
// is derived from the other.
var swingTiltDegrees = map[string]int{
	"off":        0,
	"upper":      5,
	"position_1": 15,
	"position_2": 30,
	"position_3": 45,
	"position_4": 60,
	"position_5": 75,
	"bottom":     90,
	"auto":       0,
	"special":    0,
}

// TiltAngle returns the louver angle in degrees for a named swing
// position.
func TiltAngle(position string) (int, bool) {
	deg, ok := swingTiltDegrees[position]
	return deg, ok
}

// SwingPositionForTilt buckets an angle in degrees into the nearest named
// position.
func SwingPositionForTilt(angle int) string {
	switch {
	case angle <= 2:
		return "off"
	case angle <= 9:
		return "upper"
	case angle <= 22:
		return "position_1"
	case angle <= 37:
		return "position_2"
	case angle <= 52:
		return "position_3"
	case angle <= 67:
		return "position_4"
	case angle <= 82:
		return "position_5"
	default:
		return "bottom"
	}
}

// Default refrigerator level-code tables, used when the model is not in
// the registry. Codes map to degrees celsius.
var refLevelDegrees = map[string]map[string]float64{
	"compartment_temperature": {
		"1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8, "9": 9,
	},
	"freezer_temperature": {
		"1": -24, "2": -23, "3": -22, "4": -21, "5": -20, "6": -19,
		"7": -18, "8": -17, "9": -16, "10": -15, "11": -14,
	},
	"my_zone_temperature": {
		"1": -5, "2": -3, "3": -1, "4": 0, "5": 3, "6": 5,
	},
}

func refLevelToDegrees(name, code string) (float64, bool) {
	table, ok := refLevelDegrees[name]
	if !ok {
		return 0, false
	}
	deg, ok := table[code]
	return deg, ok
}

func refDegreesToLevel(name string, degrees float64) (string, bool) {
	table, ok := refLevelDegrees[name]
	if !ok {
		return "", false
	}
	bestCode := ""
	bestDist := 0.0
	for code, deg := range table {
		dist := deg - degrees
		if dist < 0 {
			dist = -dist
		}
		if bestCode == "" || dist < bestDist {
			bestCode, bestDist = code, dist
		}
	}
	return bestCode, bestCode != ""
}

func reverse(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[v] = k
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseWireBool(v string) (bool, bool) {
	switch v {
	case "1", "true", "on":
		return true, true
	case "0", "false", "off":
		return false, true
	}
	return false, false
}
